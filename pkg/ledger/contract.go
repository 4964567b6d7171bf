package ledger

import (
	"fmt"
	"strings"
)

// CommandName identifies a ledger client sub-command for contract lookup.
type CommandName string

const (
	CmdStakeKeyGen    CommandName = "stake-address key-gen"
	CmdPaymentKeyGen  CommandName = "address key-gen (payment)"
	CmdPolicyKeyGen   CommandName = "address key-gen (policy)"
	CmdAddressBuild   CommandName = "address build"
	CmdProtocolParams CommandName = "query protocol-parameters"
	CmdQueryUTXO      CommandName = "query utxo"
	CmdQueryTip       CommandName = "query tip"
	CmdKeyHash        CommandName = "address key-hash"
	CmdPolicyID       CommandName = "transaction policyid"
	CmdBuildRaw       CommandName = "transaction build-raw"
	CmdMinFee         CommandName = "transaction calculate-min-fee"
	CmdSign           CommandName = "transaction sign"
	CmdSubmit         CommandName = "transaction submit"
)

// Expectation is the success convention of a command.
type Expectation int

const (
	// ExpectSilent commands succeed with exit status zero and empty stdout.
	// Anything printed is a failure, whatever the exit status.
	ExpectSilent Expectation = iota

	// ExpectOutput commands succeed with exit status zero and non-empty stdout.
	ExpectOutput
)

func (e Expectation) String() string {
	if e == ExpectSilent {
		return "silent"
	}

	return "output"
}

// Contract describes how the outcome of a command is judged.
type Contract struct {
	Expect Expectation
}

// Contracts is the fixed contract table of the ledger client.
var Contracts = map[CommandName]Contract{
	CmdStakeKeyGen:    {Expect: ExpectSilent},
	CmdPaymentKeyGen:  {Expect: ExpectSilent},
	CmdPolicyKeyGen:   {Expect: ExpectSilent},
	CmdAddressBuild:   {Expect: ExpectSilent},
	CmdProtocolParams: {Expect: ExpectSilent},
	CmdQueryUTXO:      {Expect: ExpectOutput},
	CmdQueryTip:       {Expect: ExpectOutput},
	CmdKeyHash:        {Expect: ExpectOutput},
	CmdPolicyID:       {Expect: ExpectOutput},
	CmdBuildRaw:       {Expect: ExpectSilent},
	CmdMinFee:         {Expect: ExpectOutput},
	CmdSign:           {Expect: ExpectSilent},
	CmdSubmit:         {Expect: ExpectSilent},
}

// Check judges a result against the contract of the named command.
func Check(name CommandName, result Result) error {
	contract, ok := Contracts[name]
	if !ok {
		return &CommandError{Command: name, ExitCode: result.ExitCode, Err: ErrUnknownCommand}
	}

	if result.ExitCode != 0 {
		return &CommandError{
			Command:  name,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			Err:      ErrNonZeroExit,
		}
	}

	stdout := strings.TrimSpace(result.Stdout)

	switch contract.Expect {
	case ExpectSilent:
		if stdout != "" {
			return &CommandError{
				Command: name,
				Stdout:  result.Stdout,
				Stderr:  result.Stderr,
				Err:     fmt.Errorf("expected no output: %w", ErrUnexpectedOutput),
			}
		}
	case ExpectOutput:
		if stdout == "" {
			return &CommandError{
				Command: name,
				Stderr:  result.Stderr,
				Err:     fmt.Errorf("expected output: %w", ErrUnexpectedOutput),
			}
		}
	}

	return nil
}
