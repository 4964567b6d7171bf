package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create sessions table
			CREATE TABLE sessions (
				id VARCHAR(64) PRIMARY KEY,
				creator_identity VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL CHECK (status IN ('created', 'ready', 'submitted', 'confirmed', 'expired')),
				token JSONB NOT NULL,
				steps JSONB NOT NULL DEFAULT '{}',
				custodial_address TEXT,
				payout_address TEXT,
				policy_key_hash VARCHAR(64),
				policy_id VARCHAR(64),
				funding_tx_id VARCHAR(64),
				funding_output_index INTEGER,
				funding_amount BIGINT,
				observed_slot BIGINT,
				slot_margin BIGINT,
				expiry_slot BIGINT,
				fee BIGINT NOT NULL DEFAULT 0,
				return_amount BIGINT NOT NULL DEFAULT 0,
				final_tx_id VARCHAR(64),
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_sessions_status ON sessions(status);
			CREATE INDEX idx_sessions_creator ON sessions(creator_identity);
			CREATE INDEX idx_sessions_created_at ON sessions(created_at);
		`,
		2: `
			-- Migration 2: confirmation tracking and failure reporting
			ALTER TABLE sessions
				ADD COLUMN return_baseline TEXT[] NOT NULL DEFAULT '{}',
				ADD COLUMN confirm_deadline TIMESTAMP WITH TIME ZONE,
				ADD COLUMN failed_step VARCHAR(64),
				ADD COLUMN last_error TEXT;

			CREATE UNIQUE INDEX idx_sessions_custodial_address ON sessions(custodial_address)
				WHERE custodial_address IS NOT NULL;
		`,
		3: `
			-- Migration 3: sessions whose window lapsed before submission
			ALTER TABLE sessions DROP CONSTRAINT IF EXISTS sessions_status_check;
			ALTER TABLE sessions ADD CONSTRAINT sessions_status_check
				CHECK (status IN ('created', 'ready', 'submitted', 'confirmed', 'expired', 'stranded'));
		`,
	}
}
