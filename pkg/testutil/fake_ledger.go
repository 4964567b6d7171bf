package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dukex/mintflow/pkg/ledger"
)

// Default identifiers returned by FakeLedger.
var (
	FakeKeyHash  = strings.Repeat("a1", ledger.HashSize)
	FakePolicyID = strings.Repeat("b2", ledger.HashSize)
)

// FakeLedger is a scripted ledger.Runner. It mimics the side effects of the
// real client (key, address and transaction files are written to the paths
// given in the arguments) so workflows can be exercised without a node.
type FakeLedger struct {
	mu sync.Mutex

	calls     []ledger.Command
	overrides map[ledger.CommandName]func(ledger.Command) (ledger.Result, error)
	utxos     map[string][]ledger.UTXO

	Address  string
	Slot     uint64
	MinFee   uint64
	KeyHash  string
	PolicyID string

	// OnSubmit runs after a successful submission, e.g. to make the minted
	// output appear at the payout address.
	OnSubmit func(f *FakeLedger)
}

// NewFakeLedger creates a fake with sensible defaults.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		overrides: make(map[ledger.CommandName]func(ledger.Command) (ledger.Result, error)),
		utxos:     make(map[string][]ledger.UTXO),
		Address:   "addr_test1custodial",
		Slot:      1000,
		MinFee:    180_000,
		KeyHash:   FakeKeyHash,
		PolicyID:  FakePolicyID,
	}
}

// SetUTXOs replaces the outputs held at address.
func (f *FakeLedger) SetUTXOs(address string, utxos ...ledger.UTXO) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.utxos[address] = utxos
}

// AddUTXO appends an output at address.
func (f *FakeLedger) AddUTXO(address string, utxo ledger.UTXO) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.utxos[address] = append(f.utxos[address], utxo)
}

// Respond makes every invocation of name return result.
func (f *FakeLedger) Respond(name ledger.CommandName, result ledger.Result) {
	f.RespondWith(name, func(ledger.Command) (ledger.Result, error) {
		return result, nil
	})
}

// RespondWith installs a custom handler for name.
func (f *FakeLedger) RespondWith(name ledger.CommandName, handler func(ledger.Command) (ledger.Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.overrides[name] = handler
}

// Reset removes a custom handler.
func (f *FakeLedger) Reset(name ledger.CommandName) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.overrides, name)
}

// Calls returns a copy of every recorded invocation.
func (f *FakeLedger) Calls() []ledger.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := make([]ledger.Command, len(f.calls))
	copy(calls, f.calls)

	return calls
}

// CallCount returns how many times name was invoked.
func (f *FakeLedger) CallCount(name ledger.CommandName) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for _, call := range f.calls {
		if call.Name == name {
			count++
		}
	}

	return count
}

// LastCall returns the most recent invocation of name.
func (f *FakeLedger) LastCall(name ledger.CommandName) (ledger.Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Name == name {
			return f.calls[i], true
		}
	}

	return ledger.Command{}, false
}

// FlagValue returns the argument following flag.
func FlagValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}

		if value, ok := strings.CutPrefix(arg, flag+"="); ok {
			return value
		}
	}

	return ""
}

// FlagValues returns every argument following flag.
func FlagValues(args []string, flag string) []string {
	var values []string

	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			values = append(values, args[i+1])
		}
	}

	return values
}

// Run implements ledger.Runner.
func (f *FakeLedger) Run(ctx context.Context, cmd ledger.Command) (ledger.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	override, hasOverride := f.overrides[cmd.Name]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ledger.Result{}, err
	}

	if hasOverride {
		return override(cmd)
	}

	result, err := f.defaultResult(cmd)
	if err != nil {
		return ledger.Result{ExitCode: 1, Stderr: err.Error()}, nil
	}

	if cmd.Name == ledger.CmdSubmit && f.OnSubmit != nil {
		f.OnSubmit(f)
	}

	return result, nil
}

func (f *FakeLedger) defaultResult(cmd ledger.Command) (ledger.Result, error) {
	args := cmd.Args

	switch cmd.Name {
	case ledger.CmdStakeKeyGen, ledger.CmdPaymentKeyGen, ledger.CmdPolicyKeyGen:
		err := writeFile(FlagValue(args, "--verification-key-file"), "vkey")
		if err != nil {
			return ledger.Result{}, err
		}

		return ledger.Result{}, writeFile(FlagValue(args, "--signing-key-file"), "skey")
	case ledger.CmdAddressBuild:
		return ledger.Result{}, writeFile(FlagValue(args, "--out-file"), f.Address)
	case ledger.CmdProtocolParams:
		return ledger.Result{}, writeFile(FlagValue(args, "--out-file"), `{"txFeePerByte":44,"txFeeFixed":155381}`)
	case ledger.CmdQueryUTXO:
		return ledger.Result{Stdout: f.utxoTable(FlagValue(args, "--address"))}, nil
	case ledger.CmdQueryTip:
		return ledger.Result{Stdout: fmt.Sprintf(`{"era":"Mary","slot":%d}`, f.Slot)}, nil
	case ledger.CmdKeyHash:
		return ledger.Result{Stdout: f.KeyHash + "\n"}, nil
	case ledger.CmdPolicyID:
		return ledger.Result{Stdout: f.PolicyID + "\n"}, nil
	case ledger.CmdBuildRaw:
		return ledger.Result{}, writeFile(FlagValue(args, "--out-file"), strings.Join(args, " "))
	case ledger.CmdMinFee:
		return ledger.Result{Stdout: fmt.Sprintf("%d Lovelace\n", f.MinFee)}, nil
	case ledger.CmdSign:
		return ledger.Result{}, writeFile(FlagValue(args, "--out-file"), "signed")
	case ledger.CmdSubmit:
		return ledger.Result{}, nil
	default:
		return ledger.Result{}, fmt.Errorf("unknown command %s", cmd.Name)
	}
}

func (f *FakeLedger) utxoTable(address string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var b strings.Builder

	b.WriteString("                           TxHash                                 TxIx        Amount\n")
	b.WriteString("--------------------------------------------------------------------------------------\n")

	for _, utxo := range f.utxos[address] {
		assets := utxo.Assets
		if assets == "" {
			assets = "TxOutDatumNone"
		}

		fmt.Fprintf(&b, "%s     %d        %d lovelace + %s\n", utxo.TxID, utxo.Index, utxo.Lovelace, assets)
	}

	return b.String()
}

func writeFile(path, content string) error {
	if path == "" {
		return fmt.Errorf("missing output path")
	}

	return os.WriteFile(path, []byte(content), 0o600)
}
