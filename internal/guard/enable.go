package guard

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Enable walks the interactive confirmation flow: the YOLO_MODE=1 environment
// opt-in, an exactly-typed confirmation phrase, and a freshly generated
// one-time code read back from the operator. Success is journaled but leaves
// no durable artifact; enablement does not survive a restart of the
// confirming process. Every mismatch aborts and is journaled.
func (g *Guard) Enable(in io.Reader, out io.Writer) (bool, error) {
	if os.Getenv(EnvFlag) != "1" {
		fmt.Fprintf(out, "YOLO mode is disabled. Set %s=1 to enable.\n", EnvFlag)
		return false, nil
	}

	fmt.Fprintln(out, strings.Repeat("=", 70))
	fmt.Fprintln(out, "WARNING: YOLO MODE ENABLES COMMAND EXECUTION")
	fmt.Fprintln(out, strings.Repeat("=", 70))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "This allows agents to run commands on your system with your")
	fmt.Fprintln(out, "files and permissions. Only proceed in an isolated environment,")
	fmt.Fprintln(out, "with backups, under supervision.")
	fmt.Fprintln(out)

	reader := bufio.NewScanner(in)

	fmt.Fprintf(out, "Type '%s' to continue: ", ConfirmationPhrase)
	phrase, err := readLine(reader)
	if err != nil {
		return false, err
	}
	if phrase != ConfirmationPhrase {
		fmt.Fprintln(out, "Confirmation phrase incorrect. Aborting.")
		g.journal("CONFIRMATION_FAILED", map[string]interface{}{
			"reason":   "incorrect_phrase",
			"provided": preview(phrase),
		})
		return false, nil
	}

	code, err := oneTimeCode()
	if err != nil {
		return false, err
	}
	fmt.Fprintf(out, "\nOne-time code: %s\n", code)
	fmt.Fprint(out, "Retype the code above: ")
	echoed, err := readLine(reader)
	if err != nil {
		return false, err
	}
	if echoed != code {
		fmt.Fprintln(out, "Code mismatch. Aborting.")
		g.journal("CONFIRMATION_FAILED", map[string]interface{}{
			"reason": "code_mismatch",
		})
		return false, nil
	}

	g.journal("YOLO_ENABLED", map[string]interface{}{
		"method":    "interactive_confirmation",
		"timestamp": g.now().Format(time.RFC3339),
	})
	fmt.Fprintln(out, "\nYOLO mode enabled for this session.")
	fmt.Fprintln(out, "Generate execution tokens with: bridge guard generate")
	return true, nil
}

func readLine(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("guard: read confirmation input: %w", err)
		}
		return "", fmt.Errorf("guard: confirmation input closed")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// oneTimeCode returns a fresh 6-character hex code.
func oneTimeCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("guard: generate one-time code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
