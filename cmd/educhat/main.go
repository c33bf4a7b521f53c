// educhat - Interactive terminal client for the EduAssist streaming
// chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// Interactive Commands (during chat):
//
//	/help, /h           Show available commands
//	/image PATH...      Stage image attachments
//	/file PATH          Stage a document attachment
//	/staged             List staged attachments
//	/remove image N     Remove staged image N (1-based)
//	/remove file        Remove the staged document
//	/clear, /c          Clear conversation history
//	/history            Show conversation history
//	/quit, /q           Exit chat
//	Ctrl+D              Exit chat
package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/educhat/internal/config"
	"github.com/jeranaias/educhat/internal/imaging"
	"github.com/jeranaias/educhat/internal/model"
	"github.com/jeranaias/educhat/internal/registry"
	"github.com/jeranaias/educhat/internal/session"
	"github.com/jeranaias/educhat/internal/staging"
	"github.com/jeranaias/educhat/internal/storage"
	"github.com/jeranaias/educhat/internal/stream"
	"github.com/jeranaias/educhat/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// defaultChannelID keys the persisted conversation when no channel is
// given on the command line.
const defaultChannelID = "default"

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06b6d4")).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a855f7")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d399"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f59e0b"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e2e8f0"))
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// inputCLI wraps liner with a persisted history file.
type inputCLI struct {
	line        *liner.State
	historyFile string
}

func newInputCLI() *inputCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	} else {
		dir = filepath.Join(dir, ".educhat")
	}
	historyFile := filepath.Join(dir, "input_history")

	cli := &inputCLI{line: line, historyFile: historyFile}
	if f, err := os.Open(cli.historyFile); err == nil {
		cli.line.ReadHistory(f)
		f.Close()
	}
	return cli
}

func (c *inputCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

func (c *inputCLI) Close() {
	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err == nil {
		util.AtomicWriteFile(c.historyFile, buf.Bytes(), 0600)
	}
	c.line.Close()
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter echoes the in-flight answer incrementally. The session
// update callback carries no payload, so the printer diffs the pending
// message against what it has already written.
type streamPrinter struct {
	mu        sync.Mutex
	sess      *session.Session
	printed   int
	streaming bool
}

func (p *streamPrinter) onUpdate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, pending, ok := p.sess.LastAssistantDisplay()
	if !ok {
		return
	}
	// Only echo messages we watched stream in; finalized messages that
	// appear otherwise (greeting after /clear, restored history) are
	// rendered by the command handlers instead.
	if !pending && !p.streaming {
		return
	}
	if len(content) > p.printed {
		fmt.Print(assistantStyle.Render(content[p.printed:]))
		p.printed = len(content)
	}
	if pending {
		p.streaming = true
	} else {
		p.streaming = false
		p.printed = 0
	}
}

// =============================================================================
// MAIN
// =============================================================================

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	channelID := defaultChannelID
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		channelID = os.Args[1]
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfgPath, err := config.DefaultPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	dbPath := cfg.Persistence.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(filepath.Dir(cfgPath), "educhat.db")
	}
	kv, err := storage.NewSQLiteKV(dbPath)
	if err != nil {
		return fmt.Errorf("opening conversation database: %w", err)
	}
	defer kv.Close()

	reg := registry.New(logger)
	processor := imaging.NewProcessor(cfg.Policy(), reg, logger)
	stage := staging.New(cfg.Attachments.MaxImages, cfg.Attachments.MaxDocumentBytes, processor, reg, logger)
	store := storage.NewStore(kv, reg, cfg.Persistence.MaxRecordBytes, cfg.Persistence.TrimKeep, logger)
	client := stream.NewClient(cfg.ResolveBaseURL(), logger)

	printer := &streamPrinter{}
	sess := session.New(session.Options{
		ChannelID:     channelID,
		Store:         store,
		Client:        client,
		Processor:     processor,
		Registry:      reg,
		Staging:       stage,
		HistoryWindow: cfg.Persistence.HistoryWindow,
		Logger:        logger,
		OnUpdate:      printer.onUpdate,
	})
	printer.sess = sess
	defer sess.Close()

	hasHistory := sess.Mount()
	printWelcome(channelID, hasHistory, cfg.ResolveBaseURL())

	input := newInputCLI()
	defer input.Close()

	for {
		line, err := input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+D or Ctrl+C ends the session.
			fmt.Println()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(sess, line); quit {
				return nil
			}
			continue
		}

		if err := sess.Submit(context.Background(), line); err != nil {
			fmt.Println(warningStyle.Render(err.Error()))
			continue
		}

		sess.Wait()
		fmt.Println()
		if msg := sess.TakeError(); msg != "" {
			fmt.Println(warningStyle.Render(msg))
		}
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func handleCommand(sess *session.Session, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true

	case "/help", "/h":
		printHelp()

	case "/clear", "/c":
		sess.ClearHistory()
		fmt.Println(infoStyle.Render("Conversation cleared."))

	case "/history":
		printHistory(sess.Conversation())

	case "/image":
		if len(fields) < 2 {
			fmt.Println(warningStyle.Render("Usage: /image PATH..."))
			return false
		}
		stageImages(sess, fields[1:])

	case "/file":
		if len(fields) != 2 {
			fmt.Println(warningStyle.Render("Usage: /file PATH"))
			return false
		}
		stageDocument(sess, fields[1])

	case "/staged":
		printStaged(sess.Staging())

	case "/remove":
		removeStaged(sess, fields[1:])

	default:
		fmt.Println(warningStyle.Render("Unknown command. Type /help for a list."))
	}
	return false
}

func stageImages(sess *session.Session, paths []string) {
	files := make([]*imaging.File, 0, len(paths))
	for _, path := range paths {
		file, err := readAttachment(path)
		if err != nil {
			fmt.Println(warningStyle.Render(err.Error()))
			return
		}
		if !file.IsImage() {
			fmt.Println(warningStyle.Render(fmt.Sprintf("%s is not an image", path)))
			return
		}
		files = append(files, file)
	}

	if err := sess.Staging().AddImages(files); err != nil {
		fmt.Println(warningStyle.Render(err.Error()))
		return
	}
	sess.Staging().Wait()
	fmt.Println(infoStyle.Render(fmt.Sprintf("Staged %d image(s).", sess.Staging().ImageCount())))
}

func stageDocument(sess *session.Session, path string) {
	file, err := readAttachment(path)
	if err != nil {
		fmt.Println(warningStyle.Render(err.Error()))
		return
	}
	if err := sess.Staging().AddDocument(file); err != nil {
		fmt.Println(warningStyle.Render(err.Error()))
		return
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("Staged document %s (%d bytes).", file.Name, file.Size())))
}

func removeStaged(sess *session.Session, args []string) {
	if len(args) == 0 {
		fmt.Println(warningStyle.Render("Usage: /remove image N | /remove file"))
		return
	}
	switch args[0] {
	case "file":
		sess.Staging().RemoveDocument()
		fmt.Println(infoStyle.Render("Document removed."))
	case "image":
		if len(args) != 2 {
			fmt.Println(warningStyle.Render("Usage: /remove image N"))
			return
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			fmt.Println(warningStyle.Render("Image index must be a positive number."))
			return
		}
		sess.Staging().RemoveImage(n - 1)
		fmt.Println(infoStyle.Render("Image removed."))
	default:
		fmt.Println(warningStyle.Render("Usage: /remove image N | /remove file"))
	}
}

func readAttachment(path string) (*imaging.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return imaging.NewFile(filepath.Base(path), mimeType, data), nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func printWelcome(channelID string, hasHistory bool, baseURL string) {
	fmt.Println(welcomeStyle.Render("educhat " + Version))
	fmt.Println(infoStyle.Render("Backend: " + baseURL))
	fmt.Println(infoStyle.Render("Channel: " + channelID))
	if hasHistory {
		fmt.Println(infoStyle.Render("Restored previous conversation. /clear to start fresh."))
	}
	fmt.Println(infoStyle.Render("Type /help for commands."))
	fmt.Println()
}

func printHelp() {
	lines := []struct{ cmd, desc string }{
		{"/image PATH...", "Stage image attachments"},
		{"/file PATH", "Stage a document attachment"},
		{"/staged", "List staged attachments"},
		{"/remove image N", "Remove staged image N"},
		{"/remove file", "Remove the staged document"},
		{"/history", "Show conversation history"},
		{"/clear", "Clear conversation history"},
		{"/quit", "Exit"},
	}
	for _, l := range lines {
		fmt.Printf("  %s  %s\n", commandStyle.Render(fmt.Sprintf("%-16s", l.cmd)), infoStyle.Render(l.desc))
	}
}

func printStaged(stage *staging.Staging) {
	doc := stage.Document()
	images := stage.Images()
	if doc == nil && len(images) == 0 {
		fmt.Println(infoStyle.Render("Nothing staged."))
		return
	}
	if doc != nil {
		fmt.Println(infoStyle.Render(fmt.Sprintf("Document: %s (%d bytes)", doc.Info.Name, doc.Info.Size)))
	}
	for i, img := range images {
		fmt.Println(infoStyle.Render(fmt.Sprintf("Image %d: %s (%d bytes)", i+1, img.File.Name, img.File.Size())))
	}
}

func printHistory(conv *model.Conversation) {
	for _, msg := range conv.Messages {
		label := msg.Role.DisplayName()
		fmt.Printf("%s %s\n", promptStyle.Render(label+":"), msg.DisplayContent())
		if msg.Attachment != nil {
			fmt.Println(infoStyle.Render("  [file] " + msg.Attachment.Name))
		}
		if msg.Image != nil {
			fmt.Println(infoStyle.Render("  [image] " + msg.Image.Name))
		}
	}
}
