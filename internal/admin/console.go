// Package admin is the operator console: line commands read from stdin and
// applied through the hub's admin operations.
package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arcade-server/internal/hub"
	"github.com/DoyleJ11/arcade-server/internal/lobby"
	"github.com/DoyleJ11/arcade-server/internal/protocol"
	"github.com/DoyleJ11/arcade-server/internal/room"
	"github.com/DoyleJ11/arcade-server/internal/store"
)

const helpText = `commands:
  rooms
  users
  kick <user>
  mute <user> [minutes]
  ban <user> [minutes]
  announce <text>
  start <room_key>
  end <room_key>
  boss on|off
  help
  quit
`

var (
	ErrUsage        = errors.New("usage")
	ErrUnknownUser  = errors.New("user not found")
	ErrQuit         = errors.New("quit")
	errUnknownInput = errors.New("unknown command")
)

type Hub interface {
	Admin(ctx context.Context, cmd hub.AdminCommand) (hub.AdminResult, error)
	Rooms(ctx context.Context) ([]room.Info, error)
	Users(ctx context.Context) ([]lobby.OnlineUser, error)
}

type UserLookup interface {
	UserByID(ctx context.Context, id int64) (store.User, error)
	UserByUsername(ctx context.Context, username string) (store.User, error)
}

type Console struct {
	hub   Hub
	users UserLookup
	out   io.Writer
	log   *zap.Logger
}

func New(h Hub, users UserLookup, out io.Writer, log *zap.Logger) *Console {
	return &Console{hub: h, users: users, out: out, log: log}
}

// Run executes lines from in until EOF, "quit" or ctx is done. A blocked
// read on in does not hold up shutdown.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprint(c.out, "admin console ready, type help\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.Exec(ctx, line)
			switch {
			case errors.Is(err, ErrQuit):
				return nil
			case errors.Is(err, hub.ErrClosed), errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

// Exec runs a single command line.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	c.log.Debug("console command", zap.String("cmd", cmd))

	switch cmd {
	case "help", "?":
		fmt.Fprint(c.out, helpText)
		return nil
	case "quit", "exit":
		return ErrQuit
	case "rooms":
		return c.rooms(ctx)
	case "users":
		return c.onlineUsers(ctx)
	case "kick":
		if len(args) != 1 {
			return fmt.Errorf("%w: kick <user>", ErrUsage)
		}
		return c.moderate(ctx, hub.OpKick, args)
	case "mute", "ban":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("%w: %s <user> [minutes]", ErrUsage, cmd)
		}
		return c.moderate(ctx, hub.AdminOp(cmd), args)
	case "announce":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if text == "" {
			return fmt.Errorf("%w: announce <text>", ErrUsage)
		}
		return c.apply(ctx, hub.AdminCommand{Op: hub.OpAnnounce, Text: text}, "announcement sent")
	case "start", "end":
		if len(args) != 1 {
			return fmt.Errorf("%w: %s <room_key>", ErrUsage, cmd)
		}
		op := hub.OpForceStart
		if cmd == "end" {
			op = hub.OpForceEnd
		}
		return c.apply(ctx, hub.AdminCommand{Op: op, RoomKey: args[0]}, cmd+" "+args[0]+": ok")
	case "boss":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("%w: boss on|off", ErrUsage)
		}
		return c.apply(ctx, hub.AdminCommand{Op: hub.OpSetBoss, Enabled: args[0] == "on"}, "boss "+args[0])
	}
	return fmt.Errorf("%w %q, type help", errUnknownInput, cmd)
}

func (c *Console) moderate(ctx context.Context, op hub.AdminOp, args []string) error {
	u, err := c.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	cmd := hub.AdminCommand{Op: op, UserID: u.ID}
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: minutes must be a non-negative integer", ErrUsage)
		}
		cmd.Minutes = n
	}
	res, err := c.hub.Admin(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%s %s: %s", op, u.Username, res.Error)
	}
	if res.Until != 0 {
		fmt.Fprintf(c.out, "%s %s until %d\n", op, u.Username, res.Until)
	} else {
		fmt.Fprintf(c.out, "%s %s\n", op, u.Username)
	}
	return nil
}

func (c *Console) apply(ctx context.Context, cmd hub.AdminCommand, done string) error {
	res, err := c.hub.Admin(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%s: %s", cmd.Op, res.Error)
	}
	fmt.Fprintln(c.out, done)
	return nil
}

// resolve accepts a numeric id or a username.
func (c *Console) resolve(ctx context.Context, ref string) (store.User, error) {
	var (
		u   store.User
		err error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		u, err = c.users.UserByID(ctx, id)
	} else {
		u, err = c.users.UserByUsername(ctx, protocol.Fold(ref))
	}
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, ref)
	}
	return u, err
}

func (c *Console) rooms(ctx context.Context) error {
	rooms, err := c.hub.Rooms(ctx)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Fprintln(c.out, "(none)")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tSTATE\tPLAYERS\tSPECTATORS\tMODE")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.Key, r.State, r.PlayerCount, r.SpectatorCount, r.ModeName)
	}
	return tw.Flush()
}

func (c *Console) onlineUsers(ctx context.Context) error {
	users, err := c.hub.Users(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(c.out, "(none)")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tADMIN\tCORTISOL\tTIER")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%d\t%s\n", u.ID, u.Username, u.DisplayName, u.IsAdmin, u.Stats.Cortisol, u.Stats.Tier)
	}
	return tw.Flush()
}
