// ABOUTME: Terminal chat client for the lore chat backend.
// ABOUTME: Readline-style input with conversation commands and colored output.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/teyvat-labs/lorechat/internal/config"
	"github.com/teyvat-labs/lorechat/internal/directory"
	"github.com/teyvat-labs/lorechat/internal/exchange"
	"github.com/teyvat-labs/lorechat/internal/export"
	"github.com/teyvat-labs/lorechat/internal/identity"
	"github.com/teyvat-labs/lorechat/internal/repo"
	"github.com/teyvat-labs/lorechat/internal/session"
)

var (
	promptColor    = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen)
	errorColor     = color.New(color.FgRed)
	titleColor     = color.New(color.Bold)
	dimColor       = color.New(color.Faint)
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: ~/.config/lorechat/config.toml)")
	serverURL := flag.String("server", "", "Backend URL (overrides config)")
	localMode := flag.Bool("local", false, "Use the local sqlite backend instead of the remote API")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := run(*configPath, *serverURL, *localMode, *debug); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, serverURL string, localMode, debug bool) error {
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if localMode {
		cfg.Storage.Backend = config.BackendLocal
	}

	level := cfg.LogLevel()
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var ids *identity.Provider
	if cfg.Identity.Path != "" {
		ids = identity.NewProvider(cfg.Identity.Path)
	} else {
		ids = identity.NewDefaultProvider()
	}

	deviceID, err := ids.GetOrCreate()
	if err != nil {
		return fmt.Errorf("resolving device identity: %w", err)
	}
	if deviceID == "" {
		errorColor.Fprintln(os.Stderr, "no persistent storage for a device identity; sending is disabled")
	}

	var repository repo.Repository
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		local, err := repo.NewLocal(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening local store: %w", err)
		}
		defer local.Close()
		repository = local
		fmt.Printf("lorechat using local store %s\n", cfg.Storage.Path)
	default:
		repository = repo.NewRemote(cfg.Server.URL, &http.Client{Timeout: cfg.RequestTimeout()})
		fmt.Printf("lorechat connected to %s\n", cfg.Server.URL)
	}

	dir := directory.New(repository)
	ctrl := exchange.New(repository, dir, ids)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dir.Load(ctx, deviceID)
	conversations := dir.Conversations()
	if len(conversations) > 0 {
		fmt.Printf("%d conversation(s) loaded\n", len(conversations))
		// Pick up where the user left off.
		dir.Select(ctx, deviceID, conversations[0].ID)
		if active, ok := dir.ActiveConversation(); ok {
			printTranscript(active)
		}
	} else {
		dimColor.Println("no conversations yet; just type to start one")
	}
	dimColor.Println("type /help for commands")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, line, deviceID, ids, repository, dir); quit {
				return nil
			}
			continue
		}

		reply, sent := ctrl.Send(ctx, line)
		if !sent {
			errorColor.Println("message not sent (no identity available or a send is in flight)")
			continue
		}
		assistantColor.Printf("assistant> %s\n", reply)
	}
}

// handleCommand dispatches a /command line. Returns true when the client
// should exit.
func handleCommand(ctx context.Context, line, deviceID string, ids *identity.Provider, repository repo.Repository, dir *directory.Directory) bool {
	parts := strings.SplitN(line, " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		printHelp()

	case "/new":
		c := dir.Create(deviceID)
		fmt.Printf("started %s\n", c.Title)

	case "/list":
		listConversations(dir)

	case "/switch":
		switchConversation(ctx, arg, deviceID, dir)

	case "/rename":
		renameConversation(ctx, arg, deviceID, repository, dir)

	case "/delete":
		deleteConversation(ctx, deviceID, repository, dir)

	case "/export":
		exportConversation(arg, dir)

	case "/id":
		if deviceID == "" {
			fmt.Println("device identity: unavailable")
		} else {
			fmt.Printf("device identity: %s\n", deviceID)
		}

	case "/reset-id":
		if err := ids.Clear(); err != nil {
			errorColor.Printf("reset failed: %v\n", err)
		} else {
			fmt.Println("device identity cleared; restart to generate a new one")
		}

	default:
		errorColor.Printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Println(`commands:
  /new            start a new conversation
  /list           list conversations, most recent first
  /switch <n>     switch to conversation n from /list
  /rename <title> rename the active conversation
  /delete         delete the active conversation
  /export <file>  export the active transcript as HTML
  /id             show the device identity
  /reset-id       clear the device identity
  /quit           exit`)
}

func listConversations(dir *directory.Directory) {
	conversations := dir.Conversations()
	if len(conversations) == 0 {
		dimColor.Println("no conversations")
		return
	}

	active := dir.Active()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tUPDATED\t")
	for i, c := range conversations {
		marker := ""
		if c.ID == active {
			marker = " *"
		}
		fmt.Fprintf(w, "%d%s\t%s\t%s\t\n", i+1, marker, c.Title, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func switchConversation(ctx context.Context, arg, deviceID string, dir *directory.Directory) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		errorColor.Println("usage: /switch <n>")
		return
	}
	conversations := dir.Conversations()
	if n < 1 || n > len(conversations) {
		errorColor.Printf("no conversation %d (have %d)\n", n, len(conversations))
		return
	}

	target := conversations[n-1]
	dir.Select(ctx, deviceID, target.ID)
	if c, ok := dir.Get(target.ID); ok {
		printTranscript(c)
	}
}

func renameConversation(ctx context.Context, title, deviceID string, repository repo.Repository, dir *directory.Directory) {
	if title == "" {
		errorColor.Println("usage: /rename <title>")
		return
	}
	active := dir.Active()
	if active == "" {
		errorColor.Println("no active conversation")
		return
	}

	err := repository.RenameSession(ctx, deviceID, active, title)
	switch {
	case errors.Is(err, repo.ErrUnsupported):
		errorColor.Println("rename is not supported by the server; title unchanged remotely")
		// Still rename locally so the session list reads right this run.
		dir.Update(active, directory.UpdateFields{Title: &title})
	case errors.Is(err, repo.ErrNotFound):
		// A placeholder not yet persisted; rename locally only.
		dir.Update(active, directory.UpdateFields{Title: &title})
	case err != nil:
		errorColor.Printf("rename failed: %v\n", err)
	default:
		dir.Update(active, directory.UpdateFields{Title: &title})
		fmt.Println("renamed")
	}
}

func deleteConversation(ctx context.Context, deviceID string, repository repo.Repository, dir *directory.Directory) {
	active := dir.Active()
	if active == "" {
		errorColor.Println("no active conversation")
		return
	}

	err := repository.DeleteSession(ctx, deviceID, active)
	switch {
	case errors.Is(err, repo.ErrUnsupported):
		errorColor.Println("delete is not supported by the server; removing locally only")
		dir.Remove(active)
	case errors.Is(err, repo.ErrNotFound):
		dir.Remove(active)
	case err != nil:
		errorColor.Printf("delete failed: %v\n", err)
	default:
		dir.Remove(active)
		fmt.Println("deleted")
	}
}

func exportConversation(path string, dir *directory.Directory) {
	if path == "" {
		errorColor.Println("usage: /export <file>")
		return
	}
	c, ok := dir.ActiveConversation()
	if !ok {
		errorColor.Println("no active conversation")
		return
	}

	f, err := os.Create(path)
	if err != nil {
		errorColor.Printf("export failed: %v\n", err)
		return
	}
	defer f.Close()

	if err := export.WriteHTML(f, c); err != nil {
		errorColor.Printf("export failed: %v\n", err)
		return
	}
	fmt.Printf("exported %d messages to %s\n", len(c.Messages), path)
}

func printTranscript(c session.Conversation) {
	titleColor.Printf("— %s —\n", c.Title)
	for _, m := range c.Messages {
		switch m.Role {
		case session.RoleAssistant:
			assistantColor.Printf("assistant> %s\n", m.Content)
		case session.RoleUser:
			promptColor.Print("you> ")
			fmt.Println(m.Content)
		default:
			dimColor.Printf("%s> %s\n", m.Role, m.Content)
		}
	}
}
