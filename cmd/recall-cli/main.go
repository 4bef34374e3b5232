// recall-cli is a command-line client for a recalld ledger. It keeps a
// local wallet of named parties and builds signed transactions for them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-recall/config"
	"github.com/Klingon-tech/klingnet-recall/internal/ledger"
	"github.com/Klingon-tech/klingnet-recall/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-recall/internal/wallet"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
	"golang.org/x/term"
)

const callTimeout = 15 * time.Second

// env carries the resolved global settings to each subcommand.
type env struct {
	client *rpcclient.Client
	ks     *wallet.Keystore
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := ""
	dataDir := ""
	network := string(config.Mainnet)
	walletFile := ""

	// Scan for --rpc, --datadir, --network and --wallet before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--testnet":
			network = string(config.Testnet)
			args = args[1:]
		case args[0] == "--wallet" && len(args) > 1:
			walletFile = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--wallet="):
			walletFile = args[0][len("--wallet="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	netType := config.Mainnet
	if network == string(config.Testnet) {
		netType = config.Testnet
	}
	cfg, err := config.LoadFromFile(dataDir, netType)
	if err != nil {
		fatal("load config: %v", err)
	}
	if walletFile != "" {
		cfg.Wallet.FilePath = walletFile
	}
	if rpcURL == "" {
		rpcURL = fmt.Sprintf("http://%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
	}

	e := &env{
		client: rpcclient.New(rpcURL),
		ks:     wallet.NewKeystore(cfg.WalletFile()),
	}
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(e)
	case "wallet":
		cmdWallet(e, cmdArgs)
	case "party":
		cmdParty(e, cmdArgs)
	case "fund":
		cmdFund(e, cmdArgs)
	case "show":
		cmdShow(e, cmdArgs)
	case "instance":
		cmdInstance(e, cmdArgs)
	case "issue":
		cmdIssue(e, cmdArgs)
	case "transfer":
		cmdTransfer(e, cmdArgs)
	case "recall":
		cmdRecall(e, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: recall-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: from recall.conf)
  --datadir <path>    Data directory (default: ~/.recall)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network testnet
  --wallet <file>     Wallet file (default: <datadir>/<network>/keystore/wallet.json)

Commands:
  status                                   Show ledger summary
  wallet create                            Create a wallet (prints the mnemonic)
  wallet import --mnemonic "<words>"       Restore a wallet from a mnemonic
  party add <name>                         Derive a new named party
  party list                               List parties
  fund <party> <amount>                    Ask the faucet for a fee coin
  show <party>                             Show a party's coins and instances
  instance <txid:index>                    Show one contract instance
  issue --issuer <party> --amount <n>      Lock value under a new instance
        [--kind recallable] [--payer <party>] [--dry-run]
  transfer --outpoint <txid:index> --to <party|pubkey> [--amount <n>]
        [--payer <party>] [--dry-run]
  recall --outpoint <txid:index> [--payer <party>] [--dry-run]

Amounts are decimal coins, e.g. 1.5 or 0.000000000010.
`)
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(e *env) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	info, err := e.client.Info(ctx)
	if err != nil {
		fatal("ledger_getInfo: %v", err)
	}
	fmt.Printf("Network:    %s\n", info.Network)
	fmt.Printf("Sequence:   %d\n", info.Sequence)
	fmt.Printf("Coins:      %d (%s)\n", info.Coins, formatAmount(info.CoinValue))
	fmt.Printf("Instances:  %d (%s locked)\n", info.Instances, formatAmount(info.Locked))
	fmt.Printf("State root: %s\n", info.StateRoot)
	fmt.Printf("Fee rate:   %d per byte\n", info.FeeRate)
	fmt.Printf("Faucet:     %t\n", info.Faucet)
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdWallet(e *env, args []string) {
	if len(args) < 1 {
		fatal("Usage: recall-cli wallet <create|import> [flags]")
	}
	switch args[0] {
	case "create":
		cmdWalletCreate(e, args[1:])
	case "import":
		cmdWalletImport(e, args[1:])
	default:
		fatal("Unknown wallet command: %s\nUsage: recall-cli wallet <create|import> [flags]", args[0])
	}
}

func cmdWalletCreate(e *env, args []string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	fs.Parse(args)

	if e.ks.Exists() {
		fatal("wallet already exists at %s", e.ks.Path())
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	createWallet(e, mnemonic)
}

func cmdWalletImport(e *env, args []string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (24 words)")
	fs.Parse(args)

	if *mnemonic == "" {
		fatal("Usage: recall-cli wallet import --mnemonic \"<words>\"")
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}
	createWallet(e, *mnemonic)
}

func createWallet(e *env, mnemonic string) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	if err := e.ks.Create(seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}
	fmt.Printf("Wallet created: %s\n", e.ks.Path())
}

// ── party ───────────────────────────────────────────────────────────────

func cmdParty(e *env, args []string) {
	if len(args) < 1 {
		fatal("Usage: recall-cli party <add|list> [name]")
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			fatal("Usage: recall-cli party add <name>")
		}
		book := unlock(e)
		p, err := book.AddParty(args[1])
		if err != nil {
			fatal("add party: %v", err)
		}
		printParty(p)
	case "list":
		parties, err := e.ks.Parties()
		if err != nil {
			fatal("list parties: %v", err)
		}
		if len(parties) == 0 {
			fmt.Println("No parties.")
			return
		}
		for _, p := range parties {
			printParty(p)
		}
	default:
		fatal("Unknown party command: %s\nUsage: recall-cli party <add|list> [name]", args[0])
	}
}

func printParty(p wallet.Party) {
	fmt.Printf("%-12s #%-3d %s\n", p.Name, p.Index, p.Address)
	fmt.Printf("%-12s      %s\n", "", p.PubKey)
}

// ── fund / show / instance ──────────────────────────────────────────────

func cmdFund(e *env, args []string) {
	if len(args) != 2 {
		fatal("Usage: recall-cli fund <party> <amount>")
	}
	p, err := e.ks.Party(args[0])
	if err != nil {
		fatal("%v", err)
	}
	value, err := parseAmount(args[1])
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	op, err := e.client.Fund(ctx, p.Address, value)
	if err != nil {
		fatal("ledger_fund: %v", err)
	}
	fmt.Printf("Funded %s with %s\n", p.Name, formatAmount(value))
	fmt.Printf("  Coin: %s\n", op)
}

func cmdShow(e *env, args []string) {
	if len(args) != 1 {
		fatal("Usage: recall-cli show <party>")
	}
	p, err := e.ks.Party(args[0])
	if err != nil {
		fatal("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	coins, err := e.client.Coins(ctx, p.Address)
	if err != nil {
		fatal("coin_listByAddress: %v", err)
	}
	instances, err := e.client.InstancesByOwner(ctx, p.PubKey)
	if err != nil {
		fatal("contract_listByOwner: %v", err)
	}

	var total uint64
	for _, c := range coins {
		total += c.Value
	}
	fmt.Printf("Party:   %s\n", p.Name)
	fmt.Printf("Address: %s\n", p.Address)
	fmt.Printf("Coins:   %d (%s)\n", len(coins), formatAmount(total))
	for _, c := range coins {
		fmt.Printf("  %s  %s\n", c.Outpoint, formatAmount(c.Value))
	}
	fmt.Printf("Instances: %d\n", len(instances))
	for _, inst := range instances {
		printInstance(inst, "  ")
	}
}

func cmdInstance(e *env, args []string) {
	if len(args) != 1 {
		fatal("Usage: recall-cli instance <txid:index>")
	}
	op, err := types.ParseOutpoint(args[0])
	if err != nil {
		fatal("invalid outpoint: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	inst, err := e.client.Instance(ctx, op)
	if err != nil {
		fatal("contract_get: %v", err)
	}
	printInstance(inst, "")
}

func printInstance(inst contract.Instance, indent string) {
	fmt.Printf("%s%s  %s  %s\n", indent, inst.Outpoint, inst.State.Kind, formatAmount(inst.Amount))
	fmt.Printf("%s  issuer: %s\n", indent, inst.State.Issuer)
	fmt.Printf("%s  owner:  %s\n", indent, inst.State.Owner)
}

// ── issue / transfer / recall ───────────────────────────────────────────

func cmdIssue(e *env, args []string) {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	issuer := fs.String("issuer", "", "Issuing party")
	kindStr := fs.String("kind", contract.KindRecallable.String(), "Contract kind: transferable, recallable or identity")
	amountStr := fs.String("amount", "", "Value to lock")
	payer := fs.String("payer", "", "Party paying value and fee (default: issuer)")
	dryRun := fs.Bool("dry-run", false, "Validate without submitting")
	fs.Parse(args)

	if *issuer == "" || *amountStr == "" {
		fatal("Usage: recall-cli issue --issuer <party> --amount <n> [--kind recallable]")
	}
	kind, err := contract.ParseKind(*kindStr)
	if err != nil {
		fatal("%v", err)
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	if *payer == "" {
		*payer = *issuer
	}

	book := unlock(e)
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	f := funding(ctx, e, book, *payer)
	transaction, err := book.Issue(*issuer, kind, amount, f)
	if err != nil {
		fatal("build issuance: %v", err)
	}
	send(ctx, e, transaction, *dryRun)
}

func cmdTransfer(e *env, args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	opStr := fs.String("outpoint", "", "Instance to transfer (txid:index)")
	to := fs.String("to", "", "Recipient party name or compressed public key (hex)")
	amountStr := fs.String("amount", "", "Amount to transfer (default: all)")
	payer := fs.String("payer", "", "Party paying the fee (default: owner)")
	dryRun := fs.Bool("dry-run", false, "Validate without submitting")
	fs.Parse(args)

	if *opStr == "" || *to == "" {
		fatal("Usage: recall-cli transfer --outpoint <txid:index> --to <party|pubkey> [--amount <n>]")
	}
	op, err := types.ParseOutpoint(*opStr)
	if err != nil {
		fatal("invalid outpoint: %v", err)
	}
	recipient, err := resolveRecipient(e, *to)
	if err != nil {
		fatal("%v", err)
	}

	book := unlock(e)
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	inst, err := e.client.Instance(ctx, op)
	if err != nil {
		fatal("contract_get: %v", err)
	}
	amount := inst.Amount
	if *amountStr != "" {
		if amount, err = parseAmount(*amountStr); err != nil {
			fatal("invalid amount: %v", err)
		}
	}
	if *payer == "" {
		*payer = partyFor(book, inst.State.Owner)
	}

	f := funding(ctx, e, book, *payer)
	transaction, err := book.Transfer(inst, recipient, amount, f)
	if err != nil {
		fatal("build transfer: %v", err)
	}
	send(ctx, e, transaction, *dryRun)
}

func cmdRecall(e *env, args []string) {
	fs := flag.NewFlagSet("recall", flag.ExitOnError)
	opStr := fs.String("outpoint", "", "Instance to recall (txid:index)")
	payer := fs.String("payer", "", "Party paying the fee (default: issuer)")
	dryRun := fs.Bool("dry-run", false, "Validate without submitting")
	fs.Parse(args)

	if *opStr == "" {
		fatal("Usage: recall-cli recall --outpoint <txid:index>")
	}
	op, err := types.ParseOutpoint(*opStr)
	if err != nil {
		fatal("invalid outpoint: %v", err)
	}

	book := unlock(e)
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	inst, err := e.client.Instance(ctx, op)
	if err != nil {
		fatal("contract_get: %v", err)
	}
	if *payer == "" {
		*payer = partyFor(book, inst.State.Issuer)
	}

	f := funding(ctx, e, book, *payer)
	transaction, err := book.Recall(inst, f)
	if err != nil {
		fatal("build recall: %v", err)
	}
	send(ctx, e, transaction, *dryRun)
}

// funding gathers the payer's coins and the ledger's current fee rate.
func funding(ctx context.Context, e *env, book *wallet.Book, payer string) wallet.Funding {
	p, err := book.Party(payer)
	if err != nil {
		fatal("%v", err)
	}
	info, err := e.client.Info(ctx)
	if err != nil {
		fatal("ledger_getInfo: %v", err)
	}
	coins, err := e.client.Coins(ctx, p.Address)
	if err != nil {
		fatal("coin_listByAddress: %v", err)
	}
	return wallet.Funding{Payer: p.Name, Coins: coins, FeeRate: info.FeeRate}
}

// send validates or submits transaction and prints the outcome.
func send(ctx context.Context, e *env, transaction *tx.Transaction, dryRun bool) {
	if dryRun {
		res, err := e.client.Validate(ctx, transaction)
		if err != nil {
			fatal("tx_validate: %v", err)
		}
		if !res.Valid {
			fatal("transaction invalid (code %d): %s", res.Code, res.Error)
		}
		fmt.Println("Transaction valid (not submitted)")
		printReceipt(res.Receipt)
		return
	}

	receipt, err := e.client.Submit(ctx, transaction)
	if err != nil {
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) && rpcErr.IsContract() {
			fatal("contract rejected transaction: %s", rpcErr.Message)
		}
		fatal("tx_submit: %v", err)
	}
	fmt.Println("Transaction accepted")
	printReceipt(receipt)
}

func printReceipt(r *ledger.Receipt) {
	if r == nil {
		return
	}
	fmt.Printf("  TxID:     %s\n", r.TxID)
	fmt.Printf("  Sequence: %d\n", r.Sequence)
	fmt.Printf("  Fee:      %s\n", formatAmount(r.Fee))
	for _, inst := range r.Issued {
		printInstance(inst, "  ")
	}
	if r.Record != nil {
		fmt.Printf("  %s of %s\n", r.Record.Method, r.Record.Spent)
		for _, inst := range r.Record.Instances(r.TxID) {
			printInstance(inst, "    ")
		}
	}
}

// unlock prompts for the wallet password.
func unlock(e *env) *wallet.Book {
	password, err := readPassword("Password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	book, err := e.ks.Unlock(password)
	if err != nil {
		fatal("%v", err)
	}
	return book
}

// resolveRecipient accepts a party name from the wallet or a hex public key.
func resolveRecipient(e *env, s string) (types.PubKey, error) {
	if p, err := e.ks.Party(s); err == nil {
		return p.PubKey, nil
	} else if !errors.Is(err, wallet.ErrUnknownParty) {
		return types.PubKey{}, err
	}
	pub, err := types.HexToPubKey(s)
	if err != nil {
		return types.PubKey{}, fmt.Errorf("recipient %q is neither a party nor a public key", s)
	}
	return pub, nil
}

// partyFor names the wallet party holding pub.
func partyFor(book *wallet.Book, pub types.PubKey) string {
	parties, err := book.Parties()
	if err != nil {
		fatal("list parties: %v", err)
	}
	for _, p := range parties {
		if p.PubKey == pub {
			return p.Name
		}
	}
	fatal("no wallet party holds key %s; pass --payer", pub)
	return ""
}

// ── Amount helpers ──────────────────────────────────────────────────────

// formatAmount converts raw units to a human-readable decimal string.
func formatAmount(units uint64) string {
	whole := units / config.Coin
	frac := units % config.Coin
	return fmt.Sprintf("%d.%012d", whole, frac)
}

// parseAmount converts a decimal string to raw units.
func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount")
	}

	parts := strings.SplitN(s, ".", 2)

	whole, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid whole part: %w", err)
	}

	var frac uint64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > config.Decimals {
			return 0, fmt.Errorf("too many decimal places (max %d)", config.Decimals)
		}
		fracStr = fracStr + strings.Repeat("0", config.Decimals-len(fracStr))
		frac, err = strconv.ParseUint(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fractional part: %w", err)
		}
	}

	if whole > math.MaxUint64/config.Coin {
		return 0, fmt.Errorf("amount too large")
	}
	result := whole * config.Coin
	if result > math.MaxUint64-frac {
		return 0, fmt.Errorf("amount too large")
	}
	return result + frac, nil
}

// ── Password helper ─────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
