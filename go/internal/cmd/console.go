package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/mcdev12/stopify/go/clients/stopify_client"
	"github.com/mcdev12/stopify/go/internal/identity"
	"github.com/mcdev12/stopify/go/internal/room"
	"github.com/mcdev12/stopify/go/internal/room/channel"
	"github.com/rs/zerolog/log"
)

var errNoRoom = errors.New("not in a room, use create or join first")

var commands = map[string]struct{}{
	"create": {}, "join": {}, "resume": {}, "start": {}, "leave": {},
	"submit": {}, "status": {}, "quit": {}, "exit": {},
}

// roomAPI is the subset of the stopify REST client the console drives
type roomAPI interface {
	room.Submitter
	CreateRoom(ctx context.Context, playerName string) (stopify_client.CreateRoomResponse, error)
	JoinRoom(ctx context.Context, playerName, code string) (stopify_client.JoinRoomResponse, error)
	GetRoom(ctx context.Context, code string) (stopify_client.RoomResponse, error)
	LeaveRoom(ctx context.Context, code, playerID string) error
	StartGame(ctx context.Context, code string) error
}

type consoleConfig struct {
	Session room.Config
	Channel channel.Config
}

// Console is a line-oriented player front end. It owns at most one room session at a time.
type Console struct {
	api       roomAPI
	transport channel.Transport
	identity  identity.Store
	cfg       consoleConfig
	out       io.Writer

	mu      sync.Mutex
	session *room.Session
}

func NewConsole(api roomAPI, transport channel.Transport, store identity.Store, cfg consoleConfig, out io.Writer) *Console {
	return &Console{
		api:       api,
		transport: transport,
		identity:  store,
		cfg:       cfg,
		out:       out,
	}
}

// CurrentSnapshot implements statusapi.SnapshotSource
func (c *Console) CurrentSnapshot() (room.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return room.Snapshot{}, false
	}
	return c.session.Snapshot(), true
}

// Run reads commands from in until EOF, "quit" or ctx is done
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("failed to read input")
		}
	}()

	c.println("commands: create <name> | join <code> <name> | resume <code> | start | leave | <category>=<answer> | submit | status | quit")
	for {
		select {
		case <-ctx.Done():
			c.closeSession()
			return nil
		case line, ok := <-lines:
			if !ok {
				c.closeSession()
				return nil
			}
			quit, err := c.Execute(ctx, line)
			if err != nil {
				c.println("error: " + err.Error())
			}
			if quit {
				c.closeSession()
				return nil
			}
		}
	}
}

// Execute runs a single command line
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	// Category labels are free text, so anything that is not a command is an answer.
	if _, known := commands[cmd]; !known {
		if category, answer, ok := strings.Cut(line, "="); ok {
			if category = strings.TrimSpace(category); category != "" {
				return false, c.answer(ctx, category, strings.TrimSpace(answer))
			}
		}
	}

	switch cmd {
	case "create":
		if len(args) == 0 {
			return false, errors.New("usage: create <name>")
		}
		return false, c.create(ctx, strings.Join(args, " "))
	case "join":
		if len(args) < 2 {
			return false, errors.New("usage: join <code> <name>")
		}
		return false, c.join(ctx, args[0], strings.Join(args[1:], " "))
	case "resume":
		if len(args) != 1 {
			return false, errors.New("usage: resume <code>")
		}
		return false, c.resume(ctx, args[0])
	case "start":
		return false, c.start(ctx)
	case "leave":
		return false, c.leave(ctx)
	case "submit":
		return false, c.submit(ctx)
	case "status":
		return false, c.status()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *Console) create(ctx context.Context, name string) error {
	resp, err := c.api.CreateRoom(ctx, name)
	if err != nil {
		return err
	}
	code, err := room.NormalizeRoomCode(resp.Code)
	if err != nil {
		return fmt.Errorf("server returned bad room code: %w", err)
	}
	if err := c.identity.Save(resp.PlayerID); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	c.printf("created room %s\n", code)
	return c.enter(ctx, code, room.PlayerID(resp.PlayerID))
}

func (c *Console) join(ctx context.Context, rawCode, name string) error {
	code, err := room.NormalizeRoomCode(rawCode)
	if err != nil {
		return err
	}
	resp, err := c.api.JoinRoom(ctx, name, code.String())
	if err != nil {
		return err
	}
	if err := c.identity.Save(resp.PlayerID); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	c.printf("joined room %s\n", code)
	return c.enter(ctx, code, room.PlayerID(resp.PlayerID))
}

// resume re-enters a room with the saved identity, without joining again
func (c *Console) resume(ctx context.Context, rawCode string) error {
	code, err := room.NormalizeRoomCode(rawCode)
	if err != nil {
		return err
	}
	playerID, err := c.identity.Load()
	if err != nil {
		return err
	}
	return c.enter(ctx, code, room.PlayerID(playerID))
}

func (c *Console) enter(ctx context.Context, code room.RoomCode, self room.PlayerID) error {
	c.closeSession()

	var players []room.Player
	resp, err := c.api.GetRoom(ctx, code.String())
	if err != nil {
		log.Warn().Err(err).Str("room_code", code.String()).Msg("failed to fetch initial roster")
	} else {
		for _, p := range resp.Players {
			players = append(players, room.Player{ID: room.PlayerID(p.ID), Name: p.Name})
		}
	}

	cfg := c.cfg.Session
	cfg.RoomCode = code
	cfg.SelfID = self

	ch := channel.New(code.String(), c.transport, channel.WithConfig(c.cfg.Channel))
	notifier := &notifier{out: c.out, mu: &c.mu}
	session := room.NewSession(cfg, ch, c.api,
		room.WithInitialMembers(players),
		room.WithObserver(notifier.observe),
	)

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	go func() {
		if err := session.Run(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Str("room_code", code.String()).Msg("session stopped")
		}
	}()
	return nil
}

func (c *Console) current() (*room.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errNoRoom
	}
	return c.session, nil
}

func (c *Console) start(ctx context.Context) error {
	session, err := c.current()
	if err != nil {
		return err
	}
	snap := session.Snapshot()
	if !snap.CanStart {
		return fmt.Errorf("need at least %d players to start, have %d", room.MinPlayersToStart, len(snap.Members))
	}
	return c.api.StartGame(ctx, snap.RoomCode.String())
}

func (c *Console) leave(ctx context.Context) error {
	session, err := c.current()
	if err != nil {
		return err
	}
	snap := session.Snapshot()
	c.closeSession()

	if err := c.api.LeaveRoom(ctx, snap.RoomCode.String(), string(snap.SelfID)); err != nil {
		return err
	}
	if err := c.identity.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear identity")
	}
	c.printf("left room %s\n", snap.RoomCode)
	return nil
}

func (c *Console) answer(ctx context.Context, category, text string) error {
	session, err := c.current()
	if err != nil {
		return err
	}
	return session.EditAnswer(ctx, category, text)
}

func (c *Console) submit(ctx context.Context) error {
	session, err := c.current()
	if err != nil {
		return err
	}
	sent, err := session.Submit(ctx)
	if errors.Is(err, room.ErrRoundNotActive) && session.Snapshot().Submission != nil {
		sent, err = false, nil
	}
	if err != nil {
		return err
	}
	if !sent {
		c.println("answers were already submitted for this round")
	}
	return nil
}

func (c *Console) status() error {
	session, err := c.current()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	writeSnapshot(c.out, session.Snapshot())
	return nil
}

func (c *Console) closeSession() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(s string) {
	c.printf("%s\n", s)
}

// notifier prints transitions of one session's snapshots. observe runs on the session loop.
type notifier struct {
	out io.Writer
	mu  *sync.Mutex

	last    room.Snapshot
	started bool
}

func (n *notifier) observe(snap room.Snapshot) {
	prev := n.last
	n.last = snap
	if !n.started {
		n.started = true
		prev = room.Snapshot{}
	}

	var lines []string
	if snap.Connection != prev.Connection {
		lines = append(lines, fmt.Sprintf("connection: %s", snap.Connection))
	}
	if len(snap.Members) != len(prev.Members) {
		lines = append(lines, fmt.Sprintf("players (%d): %s", len(snap.Members), memberNames(snap.Members)))
	}
	if snap.Round != nil && (prev.Round == nil || prev.Round.ID != snap.Round.ID) {
		lines = append(lines, fmt.Sprintf("round started: letter %s, %ds, categories: %s",
			snap.Round.Letter, snap.RemainingSeconds, strings.Join(snap.Round.Categories, ", ")))
	}
	if snap.Submission != nil && (prev.Submission == nil || prev.Submission.Status != snap.Submission.Status) {
		line := fmt.Sprintf("submission %s (%s)", snap.Submission.Status, snap.Submission.Cause)
		if snap.SubmissionError != "" {
			line += ": " + snap.SubmissionError
		}
		lines = append(lines, line)
	}
	if len(snap.Results) > 0 && len(prev.Results) == 0 {
		lines = append(lines, "results:")
		for i, r := range snap.Results {
			lines = append(lines, fmt.Sprintf("  %d. %s %g", i+1, r.PlayerName, r.Score))
		}
	}
	if len(lines) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, line := range lines {
		fmt.Fprintln(n.out, line)
	}
}

func memberNames(members []room.Member) string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
		if m.IsSelf {
			names[i] += " (you)"
		}
	}
	return strings.Join(names, ", ")
}

func writeSnapshot(w io.Writer, snap room.Snapshot) {
	fmt.Fprintf(w, "room %s as %s, connection %s\n", snap.RoomCode, snap.SelfID, snap.Connection)
	fmt.Fprintf(w, "players (%d): %s\n", len(snap.Members), memberNames(snap.Members))
	fmt.Fprintf(w, "round: %s\n", snap.RoundState)
	if snap.Round != nil {
		fmt.Fprintf(w, "letter %s, %ds left, %d/%d answered\n", snap.Round.Letter, snap.RemainingSeconds, snap.Filled, snap.Total)
		categories := append([]string(nil), snap.Round.Categories...)
		sort.Strings(categories)
		for _, cat := range categories {
			fmt.Fprintf(w, "  %s = %s\n", cat, snap.Answers[cat])
		}
	}
	if snap.LastError != "" {
		fmt.Fprintf(w, "last error: %s\n", snap.LastError)
	}
}
