package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethtx/ethtx/binder"
	"github.com/ethtx/ethtx/bundle"
	"github.com/ethtx/ethtx/callargs"
	"github.com/ethtx/ethtx/chain"
	"github.com/ethtx/ethtx/compiler"
	"github.com/ethtx/ethtx/connection"
	"github.com/ethtx/ethtx/eth"
	"github.com/ethtx/ethtx/txmgr"
)

var (
	FromFlag = &cli.StringFlag{
		Name:  "from",
		Usage: "Sending account. Defaults to the first account of the node",
	}
	ValueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "Amount sent along, e.g. '1 ether' or '21000 wei'",
	}
	GasFlag = &cli.Uint64Flag{
		Name:  "gas",
		Usage: "Gas limit. Skips estimation",
	}
	NoEstimateFlag = &cli.BoolFlag{
		Name:  "no-estimate",
		Usage: "Send with the gas ceiling instead of an estimate",
	}
	ArtifactsFlag = &cli.StringFlag{
		Name:     "artifacts",
		Usage:    "Compiled artifacts file, as written by the compile command",
		Required: true,
	}
	ContractFlag = &cli.StringFlag{
		Name:     "contract",
		Usage:    "Contract name within the artifacts",
		Required: true,
	}
	JSONArgsFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Decode arguments as JSON values instead of passing them as strings",
	}
)

func txFlags() []cli.Flag {
	return []cli.Flag{FromFlag, ValueFlag, GasFlag, NoEstimateFlag}
}

func commands(fs afero.Fs) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "accounts",
			Usage:  "List the node's accounts with their balances",
			Action: action(fs, true, accounts),
		},
		{
			Name:      "balance",
			Usage:     "Print the balance of an address",
			ArgsUsage: "<address>",
			Action:    action(fs, true, balance),
		},
		{
			Name:      "transfer",
			Usage:     "Send value to one or more recipients",
			ArgsUsage: "<recipient>...",
			Flags: append(txFlags(), &cli.Uint64Flag{
				Name:  "max-pending",
				Usage: "Maximum number of transfers in flight (0 == no limit)",
				Value: 4,
			}),
			Action: action(fs, true, transfer),
		},
		{
			Name:      "deploy",
			Usage:     "Deploy a compiled contract",
			ArgsUsage: "[constructor arguments]...",
			Flags:     append(txFlags(), ArtifactsFlag, ContractFlag, JSONArgsFlag),
			Action:    action(fs, true, deploy),
		},
		{
			Name:      "invoke",
			Usage:     "Call or send a method of a deployed contract",
			ArgsUsage: "<method> [arguments]...",
			Flags: append(txFlags(), ArtifactsFlag, ContractFlag, JSONArgsFlag,
				&cli.StringFlag{
					Name:     "address",
					Usage:    "Address of the deployed contract",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  "estimate",
					Usage: "Only estimate the gas of the transaction",
				},
			),
			Action: action(fs, true, invoke),
		},
		{
			Name:      "rpc",
			Usage:     "Invoke a raw JSON-RPC method",
			ArgsUsage: "<method> [params]...",
			Action:    action(fs, true, rpcSend),
		},
		{
			Name:      "delay",
			Usage:     "Advance the clock of a development node",
			ArgsUsage: "<seconds>",
			Action:    action(fs, true, delay),
		},
		{
			Name:      "compile",
			Usage:     "Compile source files together with solc",
			ArgsUsage: "<file>...",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "out",
					Usage: "Write the artifacts to this file",
				},
			},
			Action: action(fs, false, compile),
		},
		{
			Name:      "remap",
			Usage:     "Rewrite compiler error positions of a bundle to the original files",
			ArgsUsage: "<bundle>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "errors",
					Usage: "File holding one compiler message per line, '-' for standard input",
					Value: "-",
				},
			},
			Action: action(fs, false, remap),
		},
		{
			Name:  "watch",
			Usage: "Print connection changes",
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:  "count",
					Usage: "Exit after this many changes (0 == until interrupted)",
				},
			},
			Action: action(fs, true, watch),
		},
	}
}

func accounts(cliCtx *cli.Context, e *env) error {
	addrs, err := e.svc.Accounts(cliCtx.Context)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(cliCtx.App.Writer)
	table.SetHeader([]string{"#", "Address", "Balance"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for i, addr := range addrs {
		bal, err := e.svc.Balance(cliCtx.Context, addr)
		if err != nil {
			return fmt.Errorf("failed to get balance of %s: %w", addr, err)
		}
		table.Append([]string{strconv.Itoa(i), addr.Hex(), bal.String()})
	}
	table.Render()
	return nil
}

func balance(cliCtx *cli.Context, e *env) error {
	if cliCtx.NArg() != 1 {
		return errors.New("expected exactly one address")
	}
	addr, err := parseAddress(cliCtx.Args().First())
	if err != nil {
		return err
	}
	bal, err := e.svc.Balance(cliCtx.Context, addr)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cliCtx.App.Writer, bal)
	return err
}

func transfer(cliCtx *cli.Context, e *env) error {
	recipients := cliCtx.Args().Slice()
	if len(recipients) == 0 {
		return errors.New("expected at least one recipient")
	}
	opts, err := txOptions(cliCtx)
	if err != nil {
		return err
	}
	txs := make([]callargs.Params, len(recipients))
	for i, r := range recipients {
		to, err := parseAddress(r)
		if err != nil {
			return err
		}
		o := opts
		o.To = &to
		txs[i] = o.Params()
	}

	queue := txmgr.NewQueue[int](cliCtx.Context, e.svc.Manager(), cliCtx.Uint64("max-pending"))
	results := make(chan txmgr.Result[int], len(txs))
	for i, p := range txs {
		queue.Send(i, p, results)
	}
	waitErr := queue.Wait()
	close(results)

	subs := make([]*chain.Submission, len(txs))
	var errs []error
	for res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("transfer to %s: %w", recipients[res.ID], res.Err))
			continue
		}
		subs[res.ID] = res.Submission
	}
	for i, sub := range subs {
		if sub != nil {
			fmt.Fprintf(cliCtx.App.Writer, "%s %s\n", common.HexToAddress(recipients[i]).Hex(), sub.Hash.Hex())
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return waitErr
}

func deploy(cliCtx *cli.Context, e *env) error {
	factory, err := loadFactory(cliCtx, e)
	if err != nil {
		return err
	}
	args, err := invocationArgs(cliCtx, cliCtx.Args().Slice())
	if err != nil {
		return err
	}
	handle, err := factory.Deploy(cliCtx.Context, args...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cliCtx.App.Writer, handle.Address().Hex())
	return err
}

func invoke(cliCtx *cli.Context, e *env) error {
	if cliCtx.NArg() == 0 {
		return errors.New("expected a method name")
	}
	factory, err := loadFactory(cliCtx, e)
	if err != nil {
		return err
	}
	addr, err := parseAddress(cliCtx.String("address"))
	if err != nil {
		return err
	}
	handle := factory.Attach(addr)
	method, ok := handle.Method(cliCtx.Args().First())
	if !ok {
		return fmt.Errorf("%w: %s", txmgr.ErrInvalidContractMethod, cliCtx.Args().First())
	}
	args, err := invocationArgs(cliCtx, cliCtx.Args().Tail())
	if err != nil {
		return err
	}
	inv := method.Invoke(args...)
	w := cliCtx.App.Writer
	switch {
	case cliCtx.Bool("estimate"):
		gas, err := inv.EstimateGas(cliCtx.Context)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, gas)
	case method.Constant():
		outs, err := inv.Read(cliCtx.Context)
		if err != nil {
			return err
		}
		for _, out := range outs {
			fmt.Fprintln(w, formatValue(out))
		}
	default:
		sub, err := inv.Submit(cliCtx.Context)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, sub.Hash.Hex())
	}
	return nil
}

func rpcSend(cliCtx *cli.Context, e *env) error {
	params := make([]any, 0, cliCtx.NArg())
	for _, arg := range cliCtx.Args().Tail() {
		params = append(params, decodeLoose(arg))
	}
	result, err := e.svc.RPCSend(cliCtx.Context, cliCtx.Args().First(), params...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cliCtx.App.Writer, string(result))
	return err
}

func delay(cliCtx *cli.Context, e *env) error {
	if cliCtx.NArg() != 1 {
		return errors.New("expected a number of seconds")
	}
	secs, err := strconv.ParseUint(cliCtx.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid seconds %q: %w", cliCtx.Args().First(), err)
	}
	return e.svc.Delay(cliCtx.Context, secs)
}

func compile(cliCtx *cli.Context, e *env) error {
	paths := cliCtx.Args().Slice()
	if len(paths) == 0 {
		return errors.New("expected at least one source file")
	}
	var (
		as  compiler.Artifacts
		err error
	)
	if out := cliCtx.String("out"); out != "" {
		as, err = e.svc.CompileTo(cliCtx.Context, out, paths...)
	} else {
		as, err = e.svc.Compile(cliCtx.Context, paths...)
	}
	if err != nil {
		return err
	}
	for _, name := range as.Names() {
		fmt.Fprintln(cliCtx.App.Writer, name)
	}
	return nil
}

func remap(cliCtx *cli.Context, e *env) error {
	if cliCtx.NArg() != 1 {
		return errors.New("expected a bundle file")
	}
	fs := afero.Afero{Fs: e.svc.Fs()}
	bundled, err := fs.ReadFile(cliCtx.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}
	var in io.Reader = cliCtx.App.Reader
	if path := cliCtx.String("errors"); path != "-" {
		data, err := fs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read errors: %w", err)
		}
		in = bytes.NewReader(data)
	}
	var msgs []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			msgs = append(msgs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read errors: %w", err)
	}
	for _, msg := range bundle.Remap(string(bundled), msgs) {
		fmt.Fprintln(cliCtx.App.Writer, msg)
	}
	return nil
}

func watch(cliCtx *cli.Context, e *env) error {
	limit := cliCtx.Uint("count")
	snapshots := make(chan connection.Snapshot, 16)
	cancel := e.svc.OnChange(func(s connection.Snapshot) {
		select {
		case snapshots <- s:
		default:
			e.log.Warn("Dropped connection change")
		}
	})
	defer cancel()
	var seen uint
	for {
		select {
		case <-cliCtx.Context.Done():
			return nil
		case s := <-snapshots:
			network := "-"
			if s.Network != nil {
				network = s.Network.String()
			}
			fmt.Fprintf(cliCtx.App.Writer, "connected=%t network=%s accounts=%d\n", s.Connected, network, len(s.Accounts))
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}

func txOptions(cliCtx *cli.Context) (callargs.Options, error) {
	var opts callargs.Options
	if from := cliCtx.String(FromFlag.Name); from != "" {
		addr, err := parseAddress(from)
		if err != nil {
			return opts, err
		}
		opts.From = &addr
	}
	if v := cliCtx.String(ValueFlag.Name); v != "" {
		value, err := eth.ParseETH(v)
		if err != nil {
			return opts, fmt.Errorf("invalid value: %w", err)
		}
		opts.Value = value.ToBig()
	}
	if cliCtx.IsSet(GasFlag.Name) {
		gas := cliCtx.Uint64(GasFlag.Name)
		opts.Gas = &gas
	}
	opts.NoEstimate = cliCtx.Bool(NoEstimateFlag.Name)
	return opts, nil
}

func loadFactory(cliCtx *cli.Context, e *env) (*binder.Factory, error) {
	as, err := compiler.ReadArtifacts(e.svc.Fs(), cliCtx.String(ArtifactsFlag.Name))
	if err != nil {
		return nil, err
	}
	return e.svc.WrapArtifact(as, cliCtx.String(ContractFlag.Name))
}

// invocationArgs returns the positional arguments followed by the transaction options.
func invocationArgs(cliCtx *cli.Context, raw []string) ([]any, error) {
	args := make([]any, 0, len(raw)+1)
	for _, arg := range raw {
		if !cliCtx.Bool(JSONArgsFlag.Name) {
			args = append(args, arg)
			continue
		}
		v, err := decodeJSON(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON argument %q: %w", arg, err)
		}
		args = append(args, v)
	}
	opts, err := txOptions(cliCtx)
	if err != nil {
		return nil, err
	}
	return append(args, opts), nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// decodeLoose decodes s as JSON, falling back to the string itself.
func decodeLoose(s string) any {
	if v, err := decodeJSON(s); err == nil {
		return v
	}
	return s
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case []byte:
		return hexutil.Encode(x)
	case common.Hash:
		return x.Hex()
	case *big.Int:
		return x.String()
	}
	return fmt.Sprint(v)
}
