package command

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/matrix-org/feedbot/internal/store"
	shellwords "github.com/mattn/go-shellwords"
)

// Command is one chat-invocable operation, matched by the longest prefix of
// its Path against the tokenized message, mirroring
// types/actions.go's Command/Matches shape.
type Command struct {
	Path []string
	Help string
	Run  func(ctx Context, args []string) (string, error)
}

// Context carries the per-invocation identity a Run function needs.
type Context struct {
	ChannelID string
	ServerID  string
	UserID    string
}

// Matches reports whether arguments begin with this command's Path.
func (c *Command) Matches(arguments []string) bool {
	if len(arguments) < len(c.Path) {
		return false
	}
	for i, segment := range c.Path {
		if !strings.EqualFold(segment, arguments[i]) {
			return false
		}
	}
	return true
}

// Tokenize splits a command body (already stripped of its leading '!') into
// arguments, using shell-style quoting. Falls back to a naive space split on
// a malformed quote, matching clients.go's onMessageEvent fallback.
func Tokenize(body string) []string {
	args, err := shellwords.Parse(body)
	if err != nil {
		return strings.Fields(body)
	}
	return args
}

// Dispatch finds the best (longest-path) match among cmds and runs it,
// returning its response text. Returns false if nothing matched.
func Dispatch(cmds []Command, ctx Context, arguments []string) (string, bool) {
	var best *Command
	for i := range cmds {
		if cmds[i].Matches(arguments) && (best == nil || len(best.Path) < len(cmds[i].Path)) {
			best = &cmds[i]
		}
	}
	if best == nil {
		return "", false
	}
	reply, err := best.Run(ctx, arguments[len(best.Path):])
	if err != nil {
		return "Error: " + err.Error(), true
	}
	return reply, true
}

// Commands builds the five fixed commands spec.md §6 requires, bound to f.
func Commands(f *Facade) []Command {
	return []Command{
		{
			Path: []string{"subscribe"},
			Help: "!subscribe <url-or-id> - subscribe this room to a feed, or move an existing subscription here",
			Run: func(ctx Context, args []string) (string, error) {
				if len(args) < 1 {
					return "", errors.New("usage: !subscribe <url-or-id>")
				}
				outcome, err := f.Subscribe(context.Background(), args[0], ctx.ChannelID, ctx.ServerID, ctx.UserID)
				if err != nil {
					return "", err
				}
				return subscribeReply(outcome), nil
			},
		},
		{
			Path: []string{"unsubscribe"},
			Help: "!unsubscribe <id> - remove a subscription",
			Run: func(ctx Context, args []string) (string, error) {
				if len(args) < 1 {
					return "", errors.New("usage: !unsubscribe <id>")
				}
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return "", err
				}
				if err := f.Unsubscribe(id, ctx.ServerID); err != nil {
					return "", err
				}
				return "Unsubscribed.", nil
			},
		},
		{
			Path: []string{"list"},
			Help: "!list - list this server's subscriptions",
			Run: func(ctx Context, args []string) (string, error) {
				subs, err := f.List(ctx.ServerID)
				if err != nil {
					return "", err
				}
				return formatList(subs), nil
			},
		},
		{
			Path: []string{"preview"},
			Help: "!preview <url-or-id> - show a feed's most recent items without subscribing",
			Run: func(ctx Context, args []string) (string, error) {
				if len(args) < 1 {
					return "", errors.New("usage: !preview <url-or-id>")
				}
				result, err := f.Preview(context.Background(), args[0], ctx.ServerID)
				if err != nil {
					return "", err
				}
				return formatPreview(result), nil
			},
		},
		{
			Path: []string{"status"},
			Help: "!status - show subscription health for this server",
			Run: func(ctx Context, args []string) (string, error) {
				report, err := f.Status(ctx.ServerID)
				if err != nil {
					return "", err
				}
				return formatStatus(report), nil
			},
		},
	}
}

func subscribeReply(outcome SubscribeOutcome) string {
	switch outcome {
	case Created:
		return "Subscribed."
	case Moved:
		return "Moved the existing subscription to this room."
	case AlreadyHere:
		return "Already subscribed in this room."
	default:
		return "Could not find that feed."
	}
}

func formatList(subs []store.Subscription) string {
	if len(subs) == 0 {
		return "No subscriptions."
	}
	var b strings.Builder
	for _, s := range subs {
		b.WriteString(strconv.FormatInt(s.ID, 10))
		b.WriteString(": ")
		b.WriteString(s.DisplayName)
		b.WriteString(" (")
		b.WriteString(s.FeedURL)
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPreview(result PreviewResult) string {
	var b strings.Builder
	b.WriteString(result.Metadata.Title)
	b.WriteString("\n")
	for _, item := range result.Items {
		b.WriteString("- ")
		b.WriteString(item.Title)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatus(report StatusReport) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(report.Total))
	b.WriteString(" subscription(s), ")
	b.WriteString(strconv.Itoa(report.Erroring))
	b.WriteString(" erroring, default poll interval ")
	b.WriteString(strconv.Itoa(report.DefaultPollInterval))
	b.WriteString("s\n")
	if len(report.Lines) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}
	for _, l := range report.Lines {
		status := "ok"
		if !l.Healthy {
			status = "erroring"
		}
		b.WriteString(l.Subscription.DisplayName)
		b.WriteString(": ")
		b.WriteString(status)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
