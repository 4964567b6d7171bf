package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// HashSize is the size in bytes of key hashes and policy ids.
const HashSize = 28

// Network selects the ledger network the client talks to.
type Network struct {
	Mainnet      bool
	TestnetMagic uint32
}

// Args returns the network discriminator flags.
func (n Network) Args() []string {
	if n.Mainnet {
		return []string{"--mainnet"}
	}

	return []string{"--testnet-magic", strconv.FormatUint(uint64(n.TestnetMagic), 10)}
}

// Client is a typed façade over the ledger client commands.
type Client struct {
	runner  Runner
	network Network
	logger  *slog.Logger
}

// NewClient creates a client using the given runner.
func NewClient(runner Runner, network Network, logger *slog.Logger) *Client {
	return &Client{
		runner:  runner,
		network: network,
		logger:  logger.With("module", "ledger_client"),
	}
}

// Network returns the configured network.
func (c *Client) Network() Network {
	return c.network
}

func (c *Client) invoke(ctx context.Context, name CommandName, args ...string) (string, error) {
	result, err := c.runner.Run(ctx, Command{Name: name, Args: args})
	if err != nil {
		return "", err
	}

	err = Check(name, result)
	if err != nil {
		c.logger.WarnContext(ctx, "Ledger command broke its contract",
			"command", name,
			"exit_code", result.ExitCode,
			"error", err,
		)

		return "", err
	}

	return result.Stdout, nil
}

func (c *Client) withNetwork(args ...string) []string {
	return append(args, c.network.Args()...)
}

// GenerateStakeKeys writes a stake key pair.
func (c *Client) GenerateStakeKeys(ctx context.Context, vkey, skey string) error {
	_, err := c.invoke(ctx, CmdStakeKeyGen,
		"stake-address", "key-gen",
		"--verification-key-file", vkey,
		"--signing-key-file", skey,
	)

	return err
}

// GeneratePaymentKeys writes a payment key pair.
func (c *Client) GeneratePaymentKeys(ctx context.Context, vkey, skey string) error {
	_, err := c.invoke(ctx, CmdPaymentKeyGen,
		"address", "key-gen",
		"--verification-key-file", vkey,
		"--signing-key-file", skey,
	)

	return err
}

// GeneratePolicyKeys writes the key pair that authorizes minting.
func (c *Client) GeneratePolicyKeys(ctx context.Context, vkey, skey string) error {
	_, err := c.invoke(ctx, CmdPolicyKeyGen,
		"address", "key-gen",
		"--verification-key-file", vkey,
		"--signing-key-file", skey,
	)

	return err
}

// BuildAddress derives the address of both verification keys into outFile.
func (c *Client) BuildAddress(ctx context.Context, paymentVKey, stakeVKey, outFile string) error {
	_, err := c.invoke(ctx, CmdAddressBuild, c.withNetwork(
		"address", "build",
		"--payment-verification-key-file", paymentVKey,
		"--stake-verification-key-file", stakeVKey,
		"--out-file", outFile,
	)...)

	return err
}

// ExportProtocolParams writes the current protocol parameters to outFile.
func (c *Client) ExportProtocolParams(ctx context.Context, outFile string) error {
	_, err := c.invoke(ctx, CmdProtocolParams, c.withNetwork(
		"query", "protocol-parameters",
		"--out-file", outFile,
	)...)

	return err
}

// QueryUTXOs lists the unspent outputs at address.
func (c *Client) QueryUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	out, err := c.invoke(ctx, CmdQueryUTXO, c.withNetwork(
		"query", "utxo",
		"--address", address,
	)...)
	if err != nil {
		return nil, err
	}

	utxos, err := ParseUTXOs(out)
	if err != nil {
		return nil, &CommandError{Command: CmdQueryUTXO, Stdout: out, Err: err}
	}

	return utxos, nil
}

// QueryTip returns the current chain tip.
func (c *Client) QueryTip(ctx context.Context) (Tip, error) {
	out, err := c.invoke(ctx, CmdQueryTip, c.withNetwork("query", "tip")...)
	if err != nil {
		return Tip{}, err
	}

	tip, err := ParseTip(out)
	if err != nil {
		return Tip{}, &CommandError{Command: CmdQueryTip, Stdout: out, Err: err}
	}

	return tip, nil
}

// KeyHash returns the hash of a payment verification key.
func (c *Client) KeyHash(ctx context.Context, vkey string) (string, error) {
	out, err := c.invoke(ctx, CmdKeyHash,
		"address", "key-hash",
		"--payment-verification-key-file", vkey,
	)
	if err != nil {
		return "", err
	}

	hash, err := ParseHexID(out, HashSize)
	if err != nil {
		return "", &CommandError{Command: CmdKeyHash, Stdout: out, Err: err}
	}

	return hash, nil
}

// PolicyID returns the policy id of a script file.
func (c *Client) PolicyID(ctx context.Context, scriptFile string) (string, error) {
	out, err := c.invoke(ctx, CmdPolicyID,
		"transaction", "policyid",
		"--script-file", scriptFile,
	)
	if err != nil {
		return "", err
	}

	id, err := ParseHexID(out, HashSize)
	if err != nil {
		return "", &CommandError{Command: CmdPolicyID, Stdout: out, Err: err}
	}

	return id, nil
}

// BuildParams describes a mint transaction body.
type BuildParams struct {
	TxIn             string
	PayoutAddress    string
	ReturnAmount     uint64
	Fee              uint64
	PolicyID         string
	AssetName        string
	Quantity         uint64
	MetadataFile     string
	InvalidHereafter uint64
	OutFile          string
}

// Asset returns the asset identifier "policy.name".
func (p BuildParams) Asset() string {
	return p.PolicyID + "." + p.AssetName
}

// BuildRaw writes an unsigned transaction body.
func (c *Client) BuildRaw(ctx context.Context, params BuildParams) error {
	txOut := fmt.Sprintf("%s+%d+%d %s", params.PayoutAddress, params.ReturnAmount, params.Quantity, params.Asset())
	mint := fmt.Sprintf("%d %s", params.Quantity, params.Asset())

	_, err := c.invoke(ctx, CmdBuildRaw,
		"transaction", "build-raw",
		"--mary-era",
		"--fee", strconv.FormatUint(params.Fee, 10),
		"--tx-in", params.TxIn,
		"--tx-out", txOut,
		"--mint="+mint,
		"--metadata-json-file", params.MetadataFile,
		"--invalid-hereafter", strconv.FormatUint(params.InvalidHereafter, 10),
		"--out-file", params.OutFile,
	)

	return err
}

// FeeParams describes the shape of a transaction for fee estimation.
type FeeParams struct {
	TxBodyFile         string
	ProtocolParamsFile string
	TxInCount          int
	TxOutCount         int
	WitnessCount       int
}

// CalculateMinFee returns the minimum fee in lovelace.
func (c *Client) CalculateMinFee(ctx context.Context, params FeeParams) (uint64, error) {
	out, err := c.invoke(ctx, CmdMinFee, c.withNetwork(
		"transaction", "calculate-min-fee",
		"--tx-body-file", params.TxBodyFile,
		"--tx-in-count", strconv.Itoa(params.TxInCount),
		"--tx-out-count", strconv.Itoa(params.TxOutCount),
		"--witness-count", strconv.Itoa(params.WitnessCount),
		"--protocol-params-file", params.ProtocolParamsFile,
	)...)
	if err != nil {
		return 0, err
	}

	fee, err := ParseLovelace(out)
	if err != nil {
		return 0, &CommandError{Command: CmdMinFee, Stdout: out, Err: err}
	}

	return fee, nil
}

// SignParams describes a signing invocation.
type SignParams struct {
	TxBodyFile      string
	SigningKeyFiles []string
	ScriptFile      string
	OutFile         string
}

// Sign signs a transaction body, attaching the script as witness data.
func (c *Client) Sign(ctx context.Context, params SignParams) error {
	args := []string{"transaction", "sign"}
	for _, key := range params.SigningKeyFiles {
		args = append(args, "--signing-key-file", key)
	}

	if params.ScriptFile != "" {
		args = append(args, "--script-file", params.ScriptFile)
	}

	args = append(args, c.network.Args()...)
	args = append(args,
		"--tx-body-file", params.TxBodyFile,
		"--out-file", params.OutFile,
	)

	_, err := c.invoke(ctx, CmdSign, args...)

	return err
}

// Submit submits a signed transaction.
func (c *Client) Submit(ctx context.Context, txFile string) error {
	_, err := c.invoke(ctx, CmdSubmit, c.withNetwork(
		"transaction", "submit",
		"--tx-file", txFile,
	)...)

	return err
}
