// cartctl is a CLI tool for exercising a cartd instance.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl show     [-server URL] [-session ID]
//	cartctl add      -variant ID [-qty N] [-price 12.50] [-currency USD] [-stock N]
//	cartctl set      -variant ID -qty N
//	cartctl remove   -variant ID
//	cartctl clear
//	cartctl load     -key CUSTOMER [-email E] [-auth]
//	cartctl checkout
//	cartctl watch
//	cartctl token    -secret S -key CUSTOMER [-email E] [-ttl 1h]
//
// Examples:
//
//	export CART_SESSION=$(cartctl show -q)
//	cartctl add -variant 7 -qty 2 -price 12.50 -currency USD
//	cartctl load -key cus_42 -email ada@shop.io -auth
//	cartctl checkout -q
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cartsync/internal/model"
	"cartsync/internal/session"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	quiet     bool
	noColor   bool
	verbose   bool

	identity    model.Session
	bearerToken string
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "show":
		runShow(args)
	case "add":
		runAdd(args)
	case "set":
		runSet(args)
	case "remove":
		runRemove(args)
	case "clear":
		runSimple("clear", "DELETE", "/cart", "Cart cleared", args)
	case "load":
		runSimple("load", "POST", "/cart/load", "Cart loaded from store", args)
	case "checkout":
		runCheckout(args)
	case "watch":
		runWatch(args)
	case "token":
		runToken(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - cart sync test tool

Usage:
  cartctl <command> [options]

Commands:
  show      Show the current cart
  add       Add an item (or raise its quantity)
  set       Set an item's quantity
  remove    Remove an item
  clear     Empty the cart
  load      Replace the local cart with the store's cart
  checkout  Sync and print the checkout URL
  watch     Stream cart updates
  token     Sign a shopper token for the jwt session provider

Every command accepts -server, -session and the identity flags
(-key, -email, -phone, -auth, -token). CART_SESSION sets the default session.

Examples:
  # Start a session and keep its id
  export CART_SESSION=$(cartctl show -q)

  # Add two mugs with 3 in stock
  cartctl add -variant 7 -qty 2 -price 12.50 -currency USD -stock 3

  # Sign in and pull the customer's cart
  cartctl load -key cus_42 -email ada@shop.io -auth

  # Print only the checkout URL
  cartctl checkout -q

  # Act as a signed-in shopper against SESSION_PROVIDER=jwt
  cartctl show -token "$(cartctl token -secret "$SESSION_JWT_SECRET" -key cus_42)"

Run 'cartctl <command> -h' for command-specific options.
`)
}

// commonFlags registers the flags shared by every command.
func commonFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("CARTD_URL", "http://localhost:8080"), "cartd base URL")
	fs.StringVar(&sessionID, "session", os.Getenv("CART_SESSION"), "Cart session id (minted by the server when empty)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")

	fs.StringVar(&identity.CustomerKey, "key", "", "Customer key for cross-device discovery")
	fs.StringVar(&identity.Identity.Email, "email", "", "Buyer email")
	fs.StringVar(&identity.Identity.Phone, "phone", "", "Buyer phone")
	fs.BoolVar(&identity.Authenticated, "auth", false, "Mark the buyer as authenticated")
	fs.StringVar(&bearerToken, "token", "", "Bearer token (firebase session provider)")
	return fs
}

func parse(fs *flag.FlagSet, usage string, args []string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// SHOW COMMAND
// =============================================================================

func runShow(args []string) {
	fs := commonFlags("show")
	parse(fs, "show [options]", args)

	resp, err := doRequest("GET", "/cart", nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}

	if quiet {
		fmt.Println(sessionID)
		return
	}
	printSuccess("Cart retrieved")
	printCart(resp)
}

// =============================================================================
// ADD COMMAND
// =============================================================================

func runAdd(args []string) {
	fs := commonFlags("add")
	var variantID, price, currency, title string
	var quantity, stock int
	fs.StringVar(&variantID, "variant", "", "Variant ID (required)")
	fs.IntVar(&quantity, "qty", 1, "Quantity to add")
	fs.StringVar(&price, "price", "", "Unit price as a decimal, e.g. 12.50")
	fs.StringVar(&currency, "currency", "", "ISO 4217 currency code")
	fs.StringVar(&title, "title", "", "Display title")
	fs.IntVar(&stock, "stock", -1, "Quantity available (-1 = unknown)")
	parse(fs, "add -variant ID [options]", args)

	if variantID == "" {
		fs.Usage()
		os.Exit(1)
	}

	body := map[string]any{
		"variant_id": variantID,
		"quantity":   quantity,
	}
	if price != "" {
		body["unit_price"] = price
	}
	if currency != "" {
		body["currency"] = currency
	}
	if title != "" {
		body["title"] = title
	}
	if stock >= 0 {
		body["quantity_available"] = stock
	}

	resp, err := doRequest("POST", "/cart/items", body)
	if err != nil {
		fatal("Failed to add item: %v", err)
	}
	report("Item added", resp)
}

// =============================================================================
// SET / REMOVE COMMANDS
// =============================================================================

func runSet(args []string) {
	fs := commonFlags("set")
	var variantID string
	var quantity int
	fs.StringVar(&variantID, "variant", "", "Variant ID (required)")
	fs.IntVar(&quantity, "qty", -1, "New quantity; 0 removes the line (required)")
	parse(fs, "set -variant ID -qty N [options]", args)

	if variantID == "" || quantity < 0 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("PATCH", "/cart/items", map[string]any{
		"variant_id": variantID,
		"quantity":   quantity,
	})
	if err != nil {
		fatal("Failed to set quantity: %v", err)
	}
	report("Quantity updated", resp)
}

func runRemove(args []string) {
	fs := commonFlags("remove")
	var variantID string
	fs.StringVar(&variantID, "variant", "", "Variant ID (required)")
	parse(fs, "remove -variant ID [options]", args)

	if variantID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("DELETE", "/cart/items?variant_id="+url.QueryEscape(variantID), nil)
	if err != nil {
		fatal("Failed to remove item: %v", err)
	}
	report("Item removed", resp)
}

// runSimple handles the commands that take no arguments of their own.
func runSimple(name, method, path, success string, args []string) {
	fs := commonFlags(name)
	parse(fs, name+" [options]", args)

	resp, err := doRequest(method, path, nil)
	if err != nil {
		fatal("%s failed: %v", name, err)
	}
	report(success, resp)
}

// =============================================================================
// CHECKOUT COMMAND
// =============================================================================

func runCheckout(args []string) {
	fs := commonFlags("checkout")
	parse(fs, "checkout [options]", args)

	resp, err := doRequest("POST", "/cart/checkout", nil)
	if err != nil {
		fatal("Failed to check out: %v", err)
	}

	checkoutURL, _ := resp["checkout_url"].(string)
	if quiet {
		fmt.Println(checkoutURL)
		return
	}
	printSuccess("Checkout ready")
	fmt.Printf("  URL: %s%s%s\n", colorBlue, checkoutURL, colorReset)
}

// =============================================================================
// WATCH COMMAND
// =============================================================================

func runWatch(args []string) {
	fs := commonFlags("watch")
	parse(fs, "watch [options]", args)

	req, err := newRequest("GET", "/cart/events", nil)
	if err != nil {
		fatal("%v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives the default client timeout.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		fatal("Failed to open event stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fatal("HTTP %d: %s", resp.StatusCode, string(body))
	}

	printInfo("Watching session %s (Ctrl-C to stop)", sessionID)

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "cart":
			var cart map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &cart); err != nil {
				printWarning("Unreadable event: %v", err)
				continue
			}
			fmt.Printf("\n%s● %s%s\n", colorCyan, time.Now().Format(time.TimeOnly), colorReset)
			printCart(map[string]any{"cart": cart})
		}
	}
	if err := scanner.Err(); err != nil {
		fatal("Event stream ended: %v", err)
	}
}

// =============================================================================
// TOKEN COMMAND
// =============================================================================

func runToken(args []string) {
	fs := commonFlags("token")
	var secret, issuer string
	var ttl time.Duration
	fs.StringVar(&secret, "secret", os.Getenv("SESSION_JWT_SECRET"), "HS256 secret shared with cartd (required)")
	fs.StringVar(&issuer, "issuer", os.Getenv("SESSION_JWT_ISSUER"), "Token issuer")
	fs.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	parse(fs, "token -secret S -key CUSTOMER [options]", args)

	if secret == "" || identity.CustomerKey == "" {
		fs.Usage()
		os.Exit(1)
	}

	token, err := session.NewJWTProvider(secret, issuer).Sign(identity, ttl)
	if err != nil {
		fatal("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func newRequest(method, path string, body []byte) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if sessionID != "" {
		req.Header.Set(session.SessionHeader, sessionID)
	}
	if identity != (model.Session{}) {
		header, err := session.FormatIdentityHeader(identity)
		if err != nil {
			return nil, fmt.Errorf("encoding identity: %w", err)
		}
		req.Header.Set(session.IdentityHeader, header)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	return req, nil
}

func doRequest(method, path string, body any) (map[string]any, error) {
	var reqJSON []byte
	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
	}

	req, err := newRequest(method, path, reqJSON)
	if err != nil {
		return nil, err
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	// Remember a session the server minted so later output can show it.
	if sessionID == "" {
		for _, c := range resp.Cookies() {
			if c.Name == session.SessionCookie {
				sessionID = c.Value
			}
		}
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

// errorMessage extracts "CODE: message" from an error body.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Code == "" {
		return string(body)
	}
	return e.Error.Code + ": " + e.Error.Message
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// report prints the outcome of a mutation followed by the cart.
func report(success string, resp map[string]any) {
	outcome, _ := resp["outcome"].(map[string]any)
	kind, _ := outcome["kind"].(string)

	if quiet {
		fmt.Println(kind)
		return
	}

	switch kind {
	case "applied", "":
		printSuccess("%s", success)
	case "queued", "local_only":
		printWarning("%s locally (%s); the store will catch up", success, kind)
	default:
		printWarning("%s (%s)", success, kind)
	}
	if cartID, _ := outcome["cart_id"].(string); cartID != "" {
		fmt.Printf("  Remote cart: %s%s%s\n", colorGray, cartID, colorReset)
	}
	printCart(resp)
}

func printCart(resp map[string]any) {
	cart, ok := resp["cart"].(map[string]any)
	if !ok {
		return
	}
	items, _ := cart["items"].([]any)
	if len(items) == 0 {
		fmt.Printf("  %s(empty cart)%s\n", colorGray, colorReset)
		return
	}
	fmt.Printf("  %sItems:%s\n", colorYellow, colorReset)
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		fmt.Printf("    - %v × %v %s%v%s @ %v\n",
			item["quantity"], item["variant_id"], colorBold, item["title"], colorReset, item["unit_price"])
	}
	fmt.Printf("  Total: %s%v %v%s (%v items)\n",
		colorGreen, cart["total"], cart["currency"], colorReset, cart["item_count"])
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
