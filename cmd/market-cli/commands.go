package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"nftmarket/cmd/internal/passphrase"
	"nftmarket/config"
	"nftmarket/crypto"
	"nftmarket/rpc"
)

const keystorePassEnv = "MARKET_KEYSTORE_PASS"

type passphraseSource interface {
	Get() (string, error)
}

// newPassphraseSource is swapped out by tests.
var newPassphraseSource = func() passphraseSource {
	return passphrase.NewSource(keystorePassEnv, "Keystore passphrase: ")
}

type command struct {
	summary string
	run     func(args []string, out io.Writer) error
}

func commands() map[string]command {
	return map[string]command{
		"generate-key": {"create a new key in an encrypted keystore", generateKey},
		"address":      {"print the address stored in a keystore", showAddress},
		"dev-token":    {"sign a development bearer token", devToken},
		"mint":         {"mint an asset and optionally list it", mint},
		"publish-ask":  {"list or re-list an owned asset", publishAsk},
		"withdraw-ask": {"delist an owned asset", assetCall("market_withdrawAsk", true)},
		"place-bid":    {"place or replace a bid", placeBid},
		"accept-bid":   {"accept a standing bid on an owned asset", acceptBid},
		"withdraw-bid": {"cancel your bid and release the funds", assetCall("market_withdrawBid", true)},
		"approve":      {"approve a transfer operator", approve},
		"lock":         {"lock an owned asset against transfers", assetCall("market_lock", true)},
		"unlock":       {"unlock an owned asset", assetCall("market_unlock", true)},
		"ask":          {"show the current ask", assetCall("market_currentAsk", false)},
		"bid":          {"show one bidder's standing bid", showBid},
		"bids":         {"list standing bids on an asset", assetCall("market_bids", false)},
		"owner":        {"show the current owner", assetCall("market_ownerOf", false)},
		"token":        {"show the registry record", assetCall("market_token", false)},
		"sales":        {"list recent sales", sales},
		"events":       {"list journaled market events", listEvents},
		"balance":      {"show an account balance", balance},
		"status":       {"show node height and root", status},
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}

func invoke(out io.Writer, method string, params interface{}, authenticated bool) error {
	result, err := callRPC(method, params, authenticated)
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func assetCall(method string, authenticated bool) func([]string, io.Writer) error {
	return func(args []string, out io.Writer) error {
		fs := newFlagSet(method)
		asset := fs.String("asset", "", "asset id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("asset", *asset); err != nil {
			return err
		}
		return invoke(out, method, rpc.AssetParams{AssetID: *asset}, authenticated)
	}
}

func generateKey(args []string, out io.Writer) error {
	fs := newFlagSet("generate-key")
	path := fs.String("out", "wallet.keystore", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil {
		return fmt.Errorf("%s already exists", *path)
	}
	pass, err := newPassphraseSource().Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*path, key, pass); err != nil {
		return fmt.Errorf("save keystore: %w", err)
	}
	fmt.Fprintf(out, "Generated new key and saved to %s\n", *path)
	fmt.Fprintf(out, "Your address is: %s\n", key.PubKey().Address().String())
	return nil
}

func loadAddress(path string) (crypto.Address, error) {
	pass, err := newPassphraseSource().Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("load keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func showAddress(args []string, out io.Writer) error {
	fs := newFlagSet("address")
	path := fs.String("keystore", "wallet.keystore", "keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := loadAddress(*path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr.String())
	return nil
}

func devToken(args []string, out io.Writer) error {
	fs := newFlagSet("dev-token")
	keystore := fs.String("keystore", "", "keystore whose address becomes the subject")
	address := fs.String("address", "", "subject address (instead of -keystore)")
	secret := fs.String("secret", "", "HS256 secret (defaults to $"+config.DefaultJWTSecretEnv+")")
	issuer := fs.String("issuer", "nftmarket", "token issuer")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		*secret = os.Getenv(config.DefaultJWTSecretEnv)
	}
	if err := required("secret", *secret); err != nil {
		return err
	}
	var subject [20]byte
	switch {
	case *address != "":
		parsed, err := crypto.ParseMarketAddress(*address)
		if err != nil {
			return err
		}
		subject = parsed
	case *keystore != "":
		addr, err := loadAddress(*keystore)
		if err != nil {
			return err
		}
		subject = addr.Bytes20()
	default:
		return fmt.Errorf("-address or -keystore is required")
	}
	token, err := rpc.IssueToken(*secret, *issuer, subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func mint(args []string, out io.Writer) error {
	fs := newFlagSet("mint")
	asset := fs.String("asset", "", "asset id")
	owner := fs.String("owner", "", "initial owner (defaults to caller)")
	name := fs.String("name", "", "display name")
	desc := fs.String("description", "", "description")
	image := fs.String("image", "", "image URI")
	askDenom := fs.String("ask-denom", "", "list at this denomination")
	askAmount := fs.String("ask-amount", "", "list at this price")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("asset", *asset); err != nil {
		return err
	}
	params := rpc.MintParams{AssetID: *asset, Owner: *owner, Name: *name, Description: *desc, Image: *image}
	if *askDenom != "" || *askAmount != "" {
		params.Ask = &rpc.CoinParam{Denom: *askDenom, Amount: *askAmount}
	}
	return invoke(out, "market_mint", params, true)
}

func publishAsk(args []string, out io.Writer) error {
	fs := newFlagSet("publish-ask")
	asset := fs.String("asset", "", "asset id")
	denom := fs.String("denom", "", "price denomination")
	amount := fs.String("amount", "", "price")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for flagName, value := range map[string]string{"asset": *asset, "denom": *denom, "amount": *amount} {
		if err := required(flagName, value); err != nil {
			return err
		}
	}
	return invoke(out, "market_publishAsk", rpc.PublishAskParams{
		AssetID: *asset,
		Price:   rpc.CoinParam{Denom: *denom, Amount: *amount},
	}, true)
}

func placeBid(args []string, out io.Writer) error {
	fs := newFlagSet("place-bid")
	asset := fs.String("asset", "", "asset id")
	denom := fs.String("denom", "", "bid denomination")
	amount := fs.String("amount", "", "bid amount")
	bidder := fs.String("bidder", "", "bidder address (must match the token subject)")
	recipient := fs.String("recipient", "", "address to receive the asset (defaults to bidder)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for flagName, value := range map[string]string{"asset": *asset, "denom": *denom, "amount": *amount, "bidder": *bidder} {
		if err := required(flagName, value); err != nil {
			return err
		}
	}
	return invoke(out, "market_placeBid", rpc.PlaceBidParams{
		AssetID:   *asset,
		Amount:    rpc.CoinParam{Denom: *denom, Amount: *amount},
		Bidder:    *bidder,
		Recipient: *recipient,
	}, true)
}

func acceptBid(args []string, out io.Writer) error {
	fs := newFlagSet("accept-bid")
	asset := fs.String("asset", "", "asset id")
	bidder := fs.String("bidder", "", "bidder whose offer to accept")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("asset", *asset); err != nil {
		return err
	}
	if err := required("bidder", *bidder); err != nil {
		return err
	}
	return invoke(out, "market_acceptBid", rpc.BidderParams{AssetID: *asset, Bidder: *bidder}, true)
}

func approve(args []string, out io.Writer) error {
	fs := newFlagSet("approve")
	asset := fs.String("asset", "", "asset id")
	spender := fs.String("spender", "", "operator address")
	expires := fs.Uint64("expires", 0, "unix expiry (0 = never)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("asset", *asset); err != nil {
		return err
	}
	if err := required("spender", *spender); err != nil {
		return err
	}
	return invoke(out, "market_approve", rpc.ApproveParams{AssetID: *asset, Spender: *spender, ExpiresAt: *expires}, true)
}

func showBid(args []string, out io.Writer) error {
	fs := newFlagSet("bid")
	asset := fs.String("asset", "", "asset id")
	bidder := fs.String("bidder", "", "bidder address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("asset", *asset); err != nil {
		return err
	}
	if err := required("bidder", *bidder); err != nil {
		return err
	}
	return invoke(out, "market_bid", rpc.BidderParams{AssetID: *asset, Bidder: *bidder}, false)
}

func sales(args []string, out io.Writer) error {
	fs := newFlagSet("sales")
	asset := fs.String("asset", "", "filter by asset id")
	limit := fs.Int("limit", 0, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(out, "market_sales", rpc.SalesParams{AssetID: *asset, Limit: *limit}, false)
}

func listEvents(args []string, out io.Writer) error {
	fs := newFlagSet("events")
	eventType := fs.String("type", "", "filter by event type, e.g. market.settled")
	asset := fs.String("asset", "", "filter by asset id")
	limit := fs.Int("limit", 0, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(out, "market_events", rpc.EventsParams{Type: *eventType, AssetID: *asset, Limit: *limit}, false)
}

func balance(args []string, out io.Writer) error {
	fs := newFlagSet("balance")
	address := fs.String("address", "", "account address")
	denom := fs.String("denom", "", "denomination")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("address", *address); err != nil {
		return err
	}
	if err := required("denom", *denom); err != nil {
		return err
	}
	return invoke(out, "bank_balance", rpc.BalanceParams{Address: *address, Denom: *denom}, false)
}

func status(args []string, out io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("status takes no arguments")
	}
	return invoke(out, "node_status", nil, false)
}
