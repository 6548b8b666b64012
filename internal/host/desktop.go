package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Opener shows a file with the desktop's default application.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// FolderPicker asks the user to choose a directory. ok is false when the
// dialog was dismissed.
type FolderPicker interface {
	PickFolder(ctx context.Context, startIn string) (path string, ok bool, err error)
}

// errNoDialog is returned when no folder dialog helper is installed.
var errNoDialog = errors.New("no folder dialog available")

type systemOpener struct{}

func (systemOpener) Open(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "explorer.exe", path) //nolint:gosec
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", path) //nolint:gosec
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", path) //nolint:gosec
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// The viewer outlives the request; reap it in the background.
	go func() { _ = cmd.Wait() }()
	return nil
}

type dialogPicker struct{}

func (dialogPicker) PickFolder(ctx context.Context, startIn string) (string, bool, error) {
	for _, argv := range dialogCommands(startIn) {
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}
		out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output() //nolint:gosec
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				// Every supported helper exits nonzero on cancel.
				return "", false, nil
			}
			return "", false, fmt.Errorf("%s: %w", argv[0], err)
		}
		path := strings.TrimSpace(string(out))
		if path == "" {
			return "", false, nil
		}
		return path, true, nil
	}
	return "", false, errNoDialog
}

func dialogCommands(startIn string) [][]string {
	switch runtime.GOOS {
	case "windows":
		script := `Add-Type -AssemblyName System.Windows.Forms;` +
			`$d = New-Object System.Windows.Forms.FolderBrowserDialog;` +
			`$d.SelectedPath = '` + strings.ReplaceAll(startIn, "'", "''") + `';` +
			`if ($d.ShowDialog() -eq 'OK') { $d.SelectedPath } else { exit 1 }`
		return [][]string{{"powershell.exe", "-NoProfile", "-STA", "-Command", script}}
	case "darwin":
		script := `POSIX path of (choose folder`
		if startIn != "" {
			script += ` default location POSIX file "` + strings.ReplaceAll(startIn, `"`, `\"`) + `"`
		}
		script += `)`
		return [][]string{{"osascript", "-e", script}}
	default:
		zenity := []string{"zenity", "--file-selection", "--directory"}
		kdialog := []string{"kdialog", "--getexistingdirectory"}
		if startIn != "" {
			zenity = append(zenity, "--filename="+strings.TrimRight(startIn, "/")+"/")
			kdialog = append(kdialog, startIn)
		}
		return [][]string{zenity, kdialog}
	}
}
