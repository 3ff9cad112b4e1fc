// widgetctl is a CLI tool for exercising bundle widget flows against a
// running proxy. Each command performs a single operation, making it
// composable for scripts.
//
// Commands:
//
//	widgetctl offer -proxy URL -bundle ID [-session ID]
//	widgetctl select -proxy URL -session ID -addon ID [-action NAME] [-variant N] [-qty N]
//	widgetctl add -proxy URL -session ID -id VARIANT [-qty N]
//	widgetctl sweep -proxy URL
//	widgetctl watch -proxy URL
//
// Examples:
//
//	SESS=$(widgetctl offer -proxy http://localhost:8080 -bundle warranty-bundle -q)
//	widgetctl select -proxy http://localhost:8080 -session $SESS -addon extended-warranty
//	widgetctl add -proxy http://localhost:8080 -session $SESS -id 44561234
//	widgetctl sweep -proxy http://localhost:8080
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	proxyURL      string
	sessionID     string
	widgetVersion string
	quiet         bool
	noColor       bool
	verbose       bool
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
	case "offer":
		runOffer(args)
	case "select":
		runSelect(args)
	case "add":
		runAdd(args)
	case "sweep":
		runSweep(args)
	case "watch":
		runWatch(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `widgetctl - bundle widget flow test tool

Usage:
  widgetctl <command> [options]

Commands:
  offer   Fetch a bundle offer and start (or refresh) a widget session
  select  Apply a selection event (select, deselect, set_variant, set_quantity)
  add     Add the main product to the cart through the interception path
  sweep   Trigger an orphan reconciliation pass
  watch   Stream widget events (notices, cart refreshes)

Examples:
  # Fetch an offer and capture the session ID
  SESS=$(widgetctl offer -proxy http://localhost:8080 -bundle warranty-bundle -q)

  # Select an add-on; the proxy resolves the variant
  widgetctl select -proxy http://localhost:8080 -session "$SESS" -addon extended-warranty

  # Add the main product; the proxy expands it into the full bundle
  widgetctl add -proxy http://localhost:8080 -session "$SESS" -id 44561234

  # Trigger a sweep after removing the main product by hand
  widgetctl sweep -proxy http://localhost:8080

Run 'widgetctl <command> -h' for command-specific options.
`)
}

// commonFlags registers the flags every command shares. A generated session
// ID keeps one-shot invocations working without an explicit -session.
func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&proxyURL, "proxy", "http://localhost:8080", "Bundle proxy base URL")
	fs.StringVar(&sessionID, "session", "", "Widget session ID (generated if empty)")
	fs.StringVar(&widgetVersion, "widget-version", "1.4.0", "Widget version to report")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - minimal output")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
}

func finishFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	if sessionID == "" {
		sessionID = "sess_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
}

// =============================================================================
// OFFER COMMAND
// =============================================================================

func runOffer(args []string) {
	fs := flag.NewFlagSet("offer", flag.ExitOnError)
	commonFlags(fs)
	var bundleID, productID string
	fs.StringVar(&bundleID, "bundle", "", "Bundle ID")
	fs.StringVar(&productID, "product", "", "Main product ID (alternative to -bundle)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: widgetctl offer -bundle ID [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	finishFlags(fs, args)

	if bundleID == "" && productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	path := "/bundle/offer?bundle_id=" + bundleID
	if bundleID == "" {
		path = "/bundle/offer?product_id=" + productID
	}

	resp, err := doRequest("GET", path, nil)
	if err != nil {
		fatal("Failed to fetch offer: %v", err)
	}

	if quiet {
		fmt.Println(sessionID)
		return
	}

	printSuccess("Offer fetched")
	fmt.Printf("  Session: %s%s%s\n", colorCyan, sessionID, colorReset)
	if quotes, ok := resp["quotes"].([]interface{}); ok {
		fmt.Printf("  %sAdd-ons:%s\n", colorYellow, colorReset)
		for _, q := range quotes {
			qm, ok := q.(map[string]interface{})
			if !ok {
				continue
			}
			line := fmt.Sprintf("    - %s: %s", qm["add_on_id"], formatCents(qm["price"]))
			if raw, ok := qm["raw_price"].(float64); ok && formatCents(raw) != formatCents(qm["price"]) {
				line += fmt.Sprintf(" %s(was %s)%s", colorGray, formatCents(raw), colorReset)
			}
			if soldOut, _ := qm["sold_out"].(bool); soldOut {
				line += fmt.Sprintf(" %ssold out%s", colorRed, colorReset)
			}
			fmt.Println(line)
		}
	}
	printArmed(resp)
}

// =============================================================================
// SELECT COMMAND
// =============================================================================

func runSelect(args []string) {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	commonFlags(fs)
	var addOnID, action string
	var variantID int64
	var quantity int
	fs.StringVar(&addOnID, "addon", "", "Add-on ID (required)")
	fs.StringVar(&action, "action", "select", "Action: select, deselect, set_variant, set_quantity")
	fs.Int64Var(&variantID, "variant", 0, "Variant ID (select hint, or set_variant target)")
	fs.IntVar(&quantity, "qty", 0, "Quantity (select hint, or set_quantity target)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: widgetctl select -session ID -addon ID [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	finishFlags(fs, args)

	if addOnID == "" {
		fs.Usage()
		os.Exit(1)
	}

	reqBody := map[string]interface{}{
		"action":    action,
		"add_on_id": addOnID,
	}
	switch action {
	case "select":
		// Without -variant the proxy resolves one itself (static pin or the
		// product's first available variant).
		if variantID != 0 {
			reqBody["source"] = map[string]interface{}{"chosen_variant_id": variantID}
		}
		if quantity > 0 {
			reqBody["quantity"] = quantity
		}
	case "set_variant":
		reqBody["variant_id"] = variantID
	case "set_quantity":
		reqBody["quantity"] = quantity
	}

	resp, err := doRequest("POST", "/bundle/selections", reqBody)
	if err != nil {
		fatal("Failed to update selection: %v", err)
	}

	if quiet {
		armed, _ := resp["armed"].(bool)
		fmt.Println(armed)
		return
	}

	if action == "select" {
		if selected, _ := resp["selected"].(bool); !selected {
			printWarning("Selection did not take (no variant resolved)")
		}
	}
	printSuccess("Selection updated")
	printSelections(resp)
	printArmed(resp)
}

// =============================================================================
// ADD COMMAND
// =============================================================================

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	commonFlags(fs)
	var variantID int64
	var quantity int
	fs.Int64Var(&variantID, "id", 0, "Main product variant ID (required)")
	fs.IntVar(&quantity, "qty", 1, "Quantity")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: widgetctl add -session ID -id VARIANT [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	finishFlags(fs, args)

	if variantID == 0 {
		fs.Usage()
		os.Exit(1)
	}

	reqBody := map[string]interface{}{
		"id":       variantID,
		"quantity": quantity,
	}

	resp, err := doRequest("POST", "/cart/add.js", reqBody)
	if err != nil {
		fatal("Failed to add to cart: %v", err)
	}

	items, _ := resp["items"].([]interface{})
	if quiet {
		fmt.Println(len(items))
		return
	}

	printSuccess("Added to cart")
	fmt.Printf("  Cart items: %s%d%s\n", colorCyan, len(items), colorReset)
	for _, it := range items {
		im, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		role := ""
		if props, ok := im["properties"].(map[string]interface{}); ok {
			role, _ = props["_bundle_role"].(string)
		}
		if role != "" {
			role = fmt.Sprintf(" %s[%s]%s", colorGray, role, colorReset)
		}
		fmt.Printf("    - %v x%v (%s)%s\n", im["variant_id"], im["quantity"], formatCents(im["final_line_price"]), role)
	}
}

// =============================================================================
// SWEEP COMMAND
// =============================================================================

func runSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: widgetctl sweep [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	finishFlags(fs, args)

	resp, err := doRequest("POST", "/bundle/sweep", nil)
	if err != nil {
		fatal("Failed to trigger sweep: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
		return
	}
	printSuccess("Sweep %s", status)
}

// =============================================================================
// WATCH COMMAND
// =============================================================================

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: widgetctl watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	finishFlags(fs, args)

	req, err := http.NewRequest("GET", proxyURL+"/bundle/events", nil)
	if err != nil {
		fatal("Creating request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	setWidgetHeader(req)

	// The stream stays open for as long as the command runs.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		fatal("Connecting to event stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fatal("HTTP %d: %s", resp.StatusCode, string(body))
	}

	printInfo("Watching events (Ctrl-C to stop)")

	scanner := bufio.NewScanner(resp.Body)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			printEvent(event, data)
		}
	}
	if err := scanner.Err(); err != nil {
		fatal("Event stream closed: %v", err)
	}
}

func printEvent(event, data string) {
	var payload map[string]interface{}
	message := ""
	if json.Unmarshal([]byte(data), &payload) == nil {
		message, _ = payload["message"].(string)
	}

	switch event {
	case "error":
		printError("%s", message)
	case "cart_refresh":
		printInfo("cart refresh")
	default:
		fmt.Printf("%s• %s%s %s\n", colorYellow, event, colorReset, message)
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func setWidgetHeader(req *http.Request) {
	req.Header.Set("Bundle-Widget", fmt.Sprintf(`session=%q, version=%q`, sessionID, widgetVersion))
}

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := proxyURL + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setWidgetHeader(req)

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

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

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

func printSelections(resp map[string]interface{}) {
	selections, ok := resp["selections"].([]interface{})
	if !ok || len(selections) == 0 {
		fmt.Printf("  %s(no add-ons selected)%s\n", colorGray, colorReset)
		return
	}
	fmt.Printf("  %sSelected:%s\n", colorYellow, colorReset)
	for _, s := range selections {
		sm, ok := s.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("    - %s: variant %v x%v\n", sm["add_on_id"], sm["variant_id"], sm["quantity"])
	}
}

func printArmed(resp map[string]interface{}) {
	if armed, _ := resp["armed"].(bool); armed {
		fmt.Printf("  Armed: %strue%s\n", colorGreen, colorReset)
	} else {
		fmt.Printf("  Armed: %sfalse%s\n", colorGray, colorReset)
	}
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func formatCents(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("$%.2f", val/100)
	case int:
		return fmt.Sprintf("$%.2f", float64(val)/100)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
