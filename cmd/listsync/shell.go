package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Bache94/ListeByBache/internal/cloudsync"
	"github.com/Bache94/ListeByBache/internal/shoppinglist"
)

const helpText = `commands:
  host                 share the list under a new code
  join <code>          join a shared list
  leave                stop sharing
  status               show the sync state
  list                 show the shopping list
  add <name> [@cat]    add an item, optionally with a category
  toggle <n>           check or uncheck item n
  rm <n>               remove item n
  clear                remove all checked items
  chat <text>          send a chat message
  refresh              pull list and chat now
  quit                 exit`

type shell struct {
	sync *cloudsync.Manager
	list *shoppinglist.Store

	mu  sync.Mutex
	out io.Writer

	shown struct {
		connection cloudsync.ConnectionState
		lastError  string
		chat       int
	}
}

func newShell(m *cloudsync.Manager, list *shoppinglist.Store, out io.Writer) *shell {
	return &shell{sync: m, list: list, out: out}
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// watch prints connection changes, errors and new chat messages.
func (s *shell) watch(st cloudsync.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Connection != s.shown.connection {
		s.shown.connection = st.Connection
		switch st.Connection {
		case cloudsync.Connected:
			fmt.Fprintf(s.out, "* connected to list %s as %s\n", st.Code, st.Role)
		case cloudsync.Hosting:
			fmt.Fprintf(s.out, "* hosting, share code %s\n", st.Code)
		case cloudsync.Joining:
			fmt.Fprintf(s.out, "* joining %s ...\n", st.Code)
		default:
			fmt.Fprintln(s.out, "* disconnected")
		}
	}
	if st.LastError != "" && st.LastError != s.shown.lastError {
		fmt.Fprintf(s.out, "! %s\n", st.LastError)
	}
	s.shown.lastError = st.LastError
	if len(st.Chat) < s.shown.chat {
		s.shown.chat = 0
	}
	for _, msg := range st.Chat[s.shown.chat:] {
		fmt.Fprintf(s.out, "[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04"), msg.Sender, msg.Text)
	}
	s.shown.chat = len(st.Chat)
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "":
	case "help", "?":
		s.printf("%s\n", helpText)
	case "quit", "exit":
		return true
	case "host":
		s.sync.GenerateCode()
	case "join":
		if arg == "" {
			s.printf("usage: join <code>\n")
			return false
		}
		s.sync.Join(arg)
	case "leave":
		s.sync.Leave()
	case "status":
		s.printStatus()
	case "list", "ls":
		s.printList()
	case "add":
		name, category, _ := strings.Cut(arg, "@")
		if strings.TrimSpace(name) == "" {
			s.printf("usage: add <name> [@category]\n")
			return false
		}
		s.list.Add(shoppinglist.NewItem(name, category))
		s.printList()
	case "toggle":
		if it, ok := s.pick(arg); ok {
			s.list.Toggle(it.ID)
			s.printList()
		}
	case "rm":
		if it, ok := s.pick(arg); ok {
			s.list.Remove(it.ID)
			s.printList()
		}
	case "clear":
		s.list.ClearChecked()
		s.printList()
	case "chat":
		if err := s.sync.SendChat(arg); err != nil {
			switch {
			case errors.Is(err, cloudsync.ErrNotConnected):
				s.printf("not connected, host or join a list first\n")
			default:
				s.printf("%v\n", err)
			}
		}
	case "refresh":
		s.sync.ReconcileListNow(ctx)
		s.sync.ReconcileChatNow(ctx)
		s.printList()
	default:
		s.printf("unknown command %q, try help\n", cmd)
	}
	return false
}

// pick resolves a 1-based position in the list as shown by printList.
func (s *shell) pick(arg string) (shoppinglist.Item, bool) {
	n, err := strconv.Atoi(arg)
	items := s.list.Items()
	if err != nil || n < 1 || n > len(items) {
		s.printf("no item %q, see list\n", arg)
		return shoppinglist.Item{}, false
	}
	return items[n-1], true
}

func (s *shell) printList() {
	items := s.list.Items()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(items) == 0 {
		fmt.Fprintln(s.out, "(list is empty)")
		return
	}
	for i, it := range items {
		mark := " "
		if it.Checked {
			mark = "x"
		}
		fmt.Fprintf(s.out, "%2d [%s] %s (%d %s, %s)\n", i+1, mark, it.Name, it.Quantity, it.Unit, it.Category)
	}
}

func (s *shell) printStatus() {
	st := s.sync.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "connection: %s\n", st.Connection)
	if st.Code != "" {
		fmt.Fprintf(s.out, "code:       %s\n", st.Code)
	}
	if st.Role != cloudsync.RoleNone {
		fmt.Fprintf(s.out, "role:       %s\n", st.Role)
	}
	if len(st.Peers) > 0 {
		fmt.Fprintf(s.out, "peers:      %s\n", strings.Join(st.Peers, ", "))
	}
	if st.LastError != "" {
		fmt.Fprintf(s.out, "last error: %s\n", st.LastError)
	}
}
