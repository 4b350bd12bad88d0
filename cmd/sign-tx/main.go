package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

const usage = `usage:
  sign-tx keygen
  sign-tx order-handle -seller <pubkey> -mint <pubkey> -n <order number>
  sign-tx sign -key <private key> -cmd <init|create|buy|cancel|update> -accounts <a,b,...> -nonce <n> [fields]

Fields: -fee (init), -amount and -price (create), -amount (buy), -price (update).
The envelope is printed as JSON; POST it to /api/v1/transactions.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = keygen()
	case "order-handle":
		err = orderHandle(os.Args[2:])
	case "sign":
		err = sign(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func keygen() error {
	signer, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"pubkey":      signer.Pubkey().String(),
		"private_key": signer.PrivateKeyBase58(), // KEEP SECRET
	})
}

func orderHandle(args []string) error {
	fs := flag.NewFlagSet("order-handle", flag.ExitOnError)
	seller := fs.String("seller", "", "Seller pubkey (base58)")
	mint := fs.String("mint", "", "Token mint (base58)")
	n := fs.Uint64("n", 0, "Seller's order number for this mint")
	program := fs.String("program", crypto.DefaultProgramID.String(), "Program id (base58)")
	fs.Parse(args)

	keys, err := parseKeys(*seller, *mint, *program)
	if err != nil {
		return err
	}
	handle, bump, err := crypto.FindOrderAddress(keys[0], keys[1], *n, keys[2])
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"order": handle, "bump": bump})
}

func sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	key := fs.String("key", "", "Fee payer private key (base58); generated when empty")
	cmd := fs.String("cmd", "", "Command: init, create, buy, cancel, update")
	accountList := fs.String("accounts", "", "Comma separated account pubkeys in declared order")
	nonce := fs.Uint64("nonce", 1, "Fee payer nonce, must exceed the last accepted one")
	fee := fs.Uint("fee", 0, "Fee in basis points (init)")
	amount := fs.Uint64("amount", 0, "Token amount (create, buy)")
	price := fs.Uint64("price", 0, "Price per token in lamports (create, update)")
	chainID := fs.Uint64("chain-id", crypto.DefaultDomain().ChainID, "Signing domain chain id")
	program := fs.String("program", crypto.DefaultProgramID.String(), "Program id (base58)")
	fs.Parse(args)

	var ix transaction.Instruction
	switch *cmd {
	case "init":
		if *fee > 0xFFFF {
			return fmt.Errorf("fee %d does not fit in u16", *fee)
		}
		ix = transaction.InitializeMarketplace{FeePercentage: uint16(*fee)}
	case "create":
		ix = transaction.CreateSellOrder{Amount: *amount, Price: *price}
	case "buy":
		ix = transaction.BuyTokens{Amount: *amount}
	case "cancel":
		ix = transaction.CancelOrder{}
	case "update":
		ix = transaction.UpdatePrice{NewPrice: *price}
	default:
		return fmt.Errorf("unknown command %q", *cmd)
	}

	var signer *crypto.Signer
	var err error
	if *key == "" {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Fprintf(os.Stderr, "Generated key %s (private %s)\n", signer.Pubkey(), signer.PrivateKeyBase58())
		}
	} else {
		signer, err = crypto.FromPrivateKeyBase58(*key)
	}
	if err != nil {
		return err
	}

	accounts, err := parseKeys(strings.Split(*accountList, ",")...)
	if err != nil {
		return err
	}
	if want := ix.Accounts(); len(accounts) < len(want) {
		return fmt.Errorf("%s needs accounts %s", ix.Kind(), strings.Join(want, ","))
	}
	programID, err := crypto.ParsePubkey(*program)
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}

	domain := crypto.DefaultDomain()
	domain.ChainID = *chainID
	domain.ProgramID = programID

	tx := transaction.New(ix, accounts, *nonce)
	tx.Sign(domain, signer)

	// Check the envelope round-trips and verifies before printing it
	raw, err := tx.Serialize()
	if err != nil {
		return err
	}
	parsed, err := transaction.ParseTransaction(raw)
	if err != nil {
		return err
	}
	if _, err := transaction.NewVerifier(domain).Verify(parsed); err != nil {
		return fmt.Errorf("self-verification failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Signed %s by %s, tx %s\n", ix.Kind(), signer.Pubkey(), tx.ID(domain))

	return printJSON(tx)
}

func parseKeys(ss ...string) ([]crypto.Pubkey, error) {
	keys := make([]crypto.Pubkey, 0, len(ss))
	for _, s := range ss {
		k, err := crypto.ParsePubkey(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("pubkey %q: %w", s, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
