package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/assettag/credential"
)

// snapshotRecord mirrors one record of the snapshot JSON layout. Records
// are decoded loosely so a damaged file can still be reported field by field.
type snapshotRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Location    string          `json:"location"`
	Department  string          `json:"department"`
	SetupDate   string          `json:"setupDate"`
	Password    string          `json:"password"`
	ScanHistory []snapshotEvent `json:"scanHistory"`
}

type snapshotEvent struct {
	Timestamp string `json:"timestamp"`
	Device    string `json:"device"`
}

type snapshotEntry struct {
	Key    string
	Record snapshotRecord
}

type verifyResult struct {
	File       string        `json:"file"`
	AssetCount int           `json:"asset_count"`
	ScanCount  int           `json:"scan_count"`
	Valid      bool          `json:"valid"`
	Checks     []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

func (r *verifyResult) pass(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "pass", Detail: detail})
}

func (r *verifyResult) fail(name, detail string) {
	r.Valid = false
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "fail", Detail: detail})
}

func (r *verifyResult) warn(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "warn", Detail: detail})
}

// decodeSnapshotEntries parses the [name, record] pair list.
func decodeSnapshotEntries(data []byte) ([]snapshotEntry, error) {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	entries := make([]snapshotEntry, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("entry %d: expected [name, record] pair, got %d elements", i, len(pair))
		}
		var e snapshotEntry
		if err := json.Unmarshal(pair[0], &e.Key); err != nil {
			return nil, fmt.Errorf("entry %d: name is not a string: %w", i, err)
		}
		if err := json.Unmarshal(pair[1], &e.Record); err != nil {
			return nil, fmt.Errorf("entry %d (%s): invalid record: %w", i, e.Key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func verifySnapshot(data []byte) verifyResult {
	result := verifyResult{Valid: true}

	entries, err := decodeSnapshotEntries(data)
	if err != nil {
		result.fail("structure", err.Error())
		return result
	}
	result.AssetCount = len(entries)
	result.pass("structure", fmt.Sprintf("%d [name, record] pairs", len(entries)))
	if len(entries) == 0 {
		result.pass("empty_registry", "no assets to verify")
		return result
	}

	// 1. Pair keys match record names and are unique.
	seen := make(map[string]int, len(entries))
	var keyProblem, dupProblem string
	for i, e := range entries {
		if e.Key == "" {
			keyProblem = fmt.Sprintf("entry %d has an empty name", i)
		} else if e.Record.Name != e.Key && keyProblem == "" {
			keyProblem = fmt.Sprintf("entry %d key %q does not match record name %q", i, e.Key, e.Record.Name)
		}
		if first, dup := seen[e.Key]; dup && dupProblem == "" {
			dupProblem = fmt.Sprintf("name %q appears at entries %d and %d", e.Key, first, i)
		}
		seen[e.Key] = i
	}
	if keyProblem != "" {
		result.fail("name_keys", keyProblem)
	} else {
		result.pass("name_keys", "")
	}
	if dupProblem != "" {
		result.fail("unique_names", dupProblem)
	} else {
		result.pass("unique_names", "")
	}

	// 2. Secrets are stored as hashes, never plaintext.
	var badHash []string
	for _, e := range entries {
		if !credential.WellFormed(e.Record.Password) {
			badHash = append(badHash, e.Key)
		}
	}
	if len(badHash) > 0 {
		result.fail("secret_hashes", fmt.Sprintf("%d asset(s) without a valid password hash: %v", len(badHash), badHash))
	} else {
		result.pass("secret_hashes", "")
	}

	// 3. Required fields.
	var missing []string
	for _, e := range entries {
		if e.Record.Location == "" || e.Record.ID == "" {
			missing = append(missing, e.Key)
		}
	}
	if len(missing) > 0 {
		result.warn("required_fields", fmt.Sprintf("%d asset(s) missing id or location: %v", len(missing), missing))
	} else {
		result.pass("required_fields", "")
	}

	// 4. Scan timestamps parse and never decrease within an asset.
	tsOK := true
	var tsDetail string
	for _, e := range entries {
		result.ScanCount += len(e.Record.ScanHistory)
		var prev time.Time
		for j, ev := range e.Record.ScanHistory {
			ts, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
			if err != nil {
				tsOK = false
				tsDetail = fmt.Sprintf("asset %q scan %d: %v", e.Key, j, err)
				break
			}
			if ts.Before(prev) {
				tsOK = false
				tsDetail = fmt.Sprintf("asset %q scan %d (%s) precedes scan %d (%s)",
					e.Key, j, ev.Timestamp, j-1, prev.Format(time.RFC3339Nano))
				break
			}
			prev = ts
		}
		if !tsOK {
			break
		}
	}
	if tsOK {
		result.pass("scan_timestamps", fmt.Sprintf("%d scan event(s) in order", result.ScanCount))
	} else {
		result.fail("scan_timestamps", tsDetail)
	}

	return result
}

func printHumanResult(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Snapshot verification: %s\n", result.File)
	fmt.Fprintf(w, "Assets: %d\n", result.AssetCount)
	fmt.Fprintf(w, "Scans:  %d\n\n", result.ScanCount)

	for _, c := range result.Checks {
		tag := "[PASS]"
		switch c.Status {
		case "fail":
			tag = "[FAIL]"
		case "warn":
			tag = "[WARN]"
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
		return
	}
	failures, warnings := 0, 0
	for _, c := range result.Checks {
		switch c.Status {
		case "fail":
			failures++
		case "warn":
			warnings++
		}
	}
	fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
}

func printJSONResult(w io.Writer, result verifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var verifyJSONOutput bool

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify the integrity of a registry snapshot",
	Long: `Reads a registry snapshot (data-dir/assets.json for the file driver) and checks
that every pair key matches its record, names are unique, secrets are stored as
bcrypt hashes and scan timestamps are well formed and in order.

Exit status is 0 when valid, 1 when invalid and 2 when the file cannot be read.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	snapshotCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read file: %v\n", err)
		os.Exit(2)
	}

	result := verifySnapshot(data)
	result.File = filePath

	out := cmd.OutOrStdout()
	if verifyJSONOutput {
		if err := printJSONResult(out, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanResult(out, result)
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}
