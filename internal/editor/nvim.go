package editor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"
)

const undoDir = "~/.local/state/nvim/undo/"

// Nvim writes through a Neovim instance so open buffers and their undo
// history stay in sync with the change. It connects to $NVIM (or
// $NVIM_LISTEN_ADDRESS) and otherwise starts a temporary headless instance.
type Nvim struct {
	nvim          *nvim.Nvim
	disk          *Disk
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// NewNvim creates a Neovim writer rooted at root.
func NewNvim(root, trashDir string) (*Nvim, error) {
	disk := NewDisk(root, trashDir)

	for _, env := range []string{"NVIM", "NVIM_LISTEN_ADDRESS"} {
		if addr := os.Getenv(env); addr != "" {
			if v, err := nvim.Dial(addr); err == nil {
				return &Nvim{nvim: v, disk: disk}, nil
			}
		}
	}

	tmpDir, err := os.MkdirTemp("", "pfx-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	n := &Nvim{
		nvim:          v,
		disk:          disk,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	if err := n.configureTempInstance(); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// configureTempInstance sets up undofile for persistent history.
func (n *Nvim) configureTempInstance() error {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	if err := os.MkdirAll(expandedUndoDir, 0755); err != nil {
		return err
	}

	b := n.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", expandedUndoDir))
	b.Command("set noswapfile")
	return b.Execute()
}

func (n *Nvim) Write(rel string, lines []string) error {
	absPath := n.disk.abs(rel)
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return err
	}

	byteContent := make([][]byte, len(lines))
	for i, s := range lines {
		byteContent[i] = []byte(s)
	}

	b := n.nvim.NewBatch()
	b.Command(fmt.Sprintf("edit! %s", escapePath(absPath)))
	b.SetBufferLines(0, 0, -1, true, byteContent)
	b.Command("write")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("nvim could not write %s: %w", rel, err)
	}
	return nil
}

// Delete unloads any buffer for rel before moving the file to the trash.
func (n *Nvim) Delete(rel string) error {
	n.wipe(rel)
	return n.disk.Delete(rel)
}

// Rename moves the file and reopens it under its new name.
func (n *Nvim) Rename(from, to string) error {
	n.wipe(from)
	return n.disk.Rename(from, to)
}

func (n *Nvim) wipe(rel string) {
	// The buffer may not be loaded; silent! keeps that from being an error.
	n.nvim.Command(fmt.Sprintf("silent! bwipeout! %s", escapePath(n.disk.abs(rel))))
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (n *Nvim) Close() error {
	var err error
	if n.nvim != nil {
		err = n.nvim.Close()
	}
	if n.isSelfStarted && n.cmd != nil && n.cmd.Process != nil {
		if killErr := n.cmd.Process.Kill(); killErr == nil {
			n.cmd.Wait()
			os.RemoveAll(filepath.Dir(n.socketPath))
		}
	}
	return err
}

func escapePath(p string) string {
	return strings.ReplaceAll(p, " ", `\ `)
}
