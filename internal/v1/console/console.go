// Package console is the operator's stdin command interface. Lines starting
// with '/' are dispatched to the same core operations the admin API uses.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
	"github.com/phiralab/phira-mp-server/internal/v1/monitors"
	"github.com/phiralab/phira-mp-server/internal/v1/security"
	"github.com/phiralab/phira-mp-server/internal/v1/session"
)

const helpText = `Commands:
  /help                                  show this help
  /list                                  list rooms
  /disband <roomId>                      force-destroy a room
  /broadcast <message>                   chat to every online player
  /kick <userId>                         disconnect a player
  /ban <id|ip> <target> [ttl] [reason]   ban a player or address (ttl like 24h)
  /pardon <id|ip> <target>               lift a ban
  /blacklist <add|remove|list> [ip]      manage the IP blacklist
  /op <id>  /deop <id>                   manage operators
  /monitors                              reload the monitors file
  /stop                                  shut the server down`

// Console reads operator commands from a stream, usually stdin.
type Console struct {
	mgr          *session.Manager
	security     *security.Store
	monitorsFile string
	shutdown     func()
	in           io.Reader
	out          io.Writer
}

func New(mgr *session.Manager, sec *security.Store, monitorsFile string, shutdown func(), in io.Reader, out io.Writer) *Console {
	return &Console{
		mgr:          mgr,
		security:     sec,
		monitorsFile: monitorsFile,
		shutdown:     shutdown,
		in:           in,
		out:          out,
	}
}

// Run consumes lines until the stream ends or the context is cancelled.
// Lines not starting with '/' are ignored.
func (c *Console) Run(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "/") {
			continue
		}
		fmt.Fprintln(c.out, c.Execute(line))
	}
	if err := scanner.Err(); err != nil {
		logging.Warn(ctx, "console read failed", zap.Error(err))
	}
}

// Execute dispatches one command line and returns the reply text.
func (c *Console) Execute(line string) string {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return helpText
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		return helpText
	case "list":
		return c.listRooms()
	case "disband":
		if len(args) != 1 {
			return "usage: /disband <roomId>"
		}
		return c.disband(args[0])
	case "broadcast":
		if len(args) == 0 {
			return "usage: /broadcast <message>"
		}
		c.mgr.BroadcastSystemChat(strings.Join(args, " "))
		return "broadcast sent"
	case "kick":
		if len(args) != 1 {
			return "usage: /kick <userId>"
		}
		return c.kick(args[0])
	case "ban":
		return c.ban(args)
	case "pardon":
		if len(args) != 2 {
			return "usage: /pardon <id|ip> <target>"
		}
		return c.pardon(args[0], args[1])
	case "blacklist":
		return c.blacklist(args)
	case "op":
		if len(args) != 1 {
			return "usage: /op <id>"
		}
		c.security.Op(args[0])
		return "operator granted: " + args[0]
	case "deop":
		if len(args) != 1 {
			return "usage: /deop <id>"
		}
		if !c.security.Deop(args[0]) {
			return "not an operator: " + args[0]
		}
		return "operator revoked: " + args[0]
	case "monitors":
		return c.reloadMonitors()
	case "stop":
		c.shutdown()
		return "shutting down"
	default:
		return "unknown command: /" + cmd
	}
}

func (c *Console) listRooms() string {
	rooms := c.mgr.Registry().List()
	if len(rooms) == 0 {
		return "no rooms"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d room(s):", len(rooms))
	for _, r := range rooms {
		flags := ""
		if r.Locked {
			flags += " locked"
		}
		if r.Cycle {
			flags += " cycle"
		}
		if r.Live {
			flags += " live"
		}
		fmt.Fprintf(&sb, "\n  %s host=%d members=%d%s", r.ID, r.HostID, len(r.Members), flags)
	}
	return sb.String()
}

func (c *Console) disband(roomID string) string {
	conns, err := c.mgr.Registry().Disband(roomID)
	if err != nil {
		return "error: " + err.Error()
	}
	for _, conn := range conns {
		conn.Close()
	}
	return fmt.Sprintf("room %s disbanded, %d member(s) evicted", roomID, len(conns))
}

func (c *Console) kick(arg string) string {
	userID, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return "bad user id: " + arg
	}
	if !c.mgr.KickUser(int32(userID)) {
		return "user not online: " + arg
	}
	return "kicked user " + arg
}

func (c *Console) ban(args []string) string {
	if len(args) < 2 {
		return "usage: /ban <id|ip> <target> [ttl] [reason]"
	}
	banType := security.BanType(args[0])
	if banType != security.BanUser && banType != security.BanIP {
		return "ban type must be id or ip"
	}

	var ttl time.Duration
	rest := args[2:]
	if len(rest) > 0 {
		if d, err := time.ParseDuration(rest[0]); err == nil {
			ttl = d
			rest = rest[1:]
		}
	}
	reason := strings.Join(rest, " ")

	c.security.AddBan(banType, args[1], ttl, reason)
	if banType == security.BanUser {
		if id, err := strconv.ParseInt(args[1], 10, 32); err == nil {
			c.mgr.KickUser(int32(id))
		}
	}
	return fmt.Sprintf("banned %s %s", args[0], args[1])
}

func (c *Console) pardon(banType, target string) string {
	if !c.security.RemoveBan(security.BanType(banType), target) {
		return "no such ban"
	}
	return fmt.Sprintf("pardoned %s %s", banType, target)
}

func (c *Console) blacklist(args []string) string {
	if len(args) == 0 {
		return "usage: /blacklist <add|remove|list> [ip]"
	}
	switch args[0] {
	case "list":
		entries := c.security.ListBlacklistIPs()
		if len(entries) == 0 {
			return "blacklist empty"
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d entries:", len(entries))
		for ip, exp := range entries {
			if exp != nil {
				fmt.Fprintf(&sb, "\n  %s until %s", ip, exp.Format(time.RFC3339))
			} else {
				fmt.Fprintf(&sb, "\n  %s", ip)
			}
		}
		return sb.String()
	case "add":
		if len(args) < 2 {
			return "usage: /blacklist add <ip> [ttl]"
		}
		var ttl time.Duration
		if len(args) > 2 {
			d, err := time.ParseDuration(args[2])
			if err != nil {
				return "bad ttl: " + args[2]
			}
			ttl = d
		}
		c.security.AddBlacklistIP(args[1], ttl)
		return "blacklisted " + args[1]
	case "remove":
		if len(args) != 2 {
			return "usage: /blacklist remove <ip>"
		}
		if !c.security.RemoveBlacklistIP(args[1]) {
			return "not blacklisted: " + args[1]
		}
		return "removed " + args[1]
	default:
		return "usage: /blacklist <add|remove|list> [ip]"
	}
}

func (c *Console) reloadMonitors() string {
	ids, err := monitors.Load(c.monitorsFile)
	if err != nil {
		return "error: " + err.Error()
	}
	c.mgr.Registry().SetMonitors(ids)
	return fmt.Sprintf("monitors reloaded, %d entries", len(ids))
}
