package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eduramirezh/adk-go/internal/config"
	"github.com/eduramirezh/adk-go/internal/ids"
	"github.com/eduramirezh/adk-go/internal/llm"
	"github.com/eduramirezh/adk-go/internal/log"
	"github.com/eduramirezh/adk-go/internal/session"
)

// cliUser owns the sessions created by adk run -session.
const cliUser = "local"

func runGenerate(args []string, stdout, stderr io.Writer) int {
	var configPath, model, sessionID string
	var stream bool
	var prompt string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(stderr, "-config requires a value")
				return exitUsage
			}
			configPath = args[i]
		case "-model", "--model":
			i++
			if i >= len(args) {
				fmt.Fprintln(stderr, "-model requires a value")
				return exitUsage
			}
			model = args[i]
		case "-session", "--session":
			i++
			if i >= len(args) {
				fmt.Fprintln(stderr, "-session requires a value")
				return exitUsage
			}
			sessionID = args[i]
		case "-stream", "--stream":
			stream = true
		default:
			if strings.HasPrefix(args[i], "-") {
				fmt.Fprintf(stderr, "unknown flag: %s\n", args[i])
				return exitUsage
			}
			prompt = strings.TrimSpace(strings.Join(args[i:], " "))
			i = len(args)
		}
	}
	if prompt == "" {
		fmt.Fprintln(stderr, "run requires a prompt")
		usage(stderr)
		return exitUsage
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if model == "" {
		model = cfg.Model.Default
	}

	logger := log.New(cfg.Logging.Level)
	defer logger.Sync()

	client, err := llm.NewFromEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	registry, err := modelRegistry(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	policy := cfg.RetryPolicy()
	opts := llm.GenerateOptions{
		Client:      client,
		Model:       model,
		Registry:    registry,
		Prompt:      prompt,
		RetryPolicy: &policy,
		Logger:      logger,
	}

	var sessions session.Service
	var sess *session.Session
	var inv string
	if sessionID != "" {
		sessions, err = sessionService(cfg)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		defer closeQuietly(sessions)

		sess, err = openSession(ctx, sessions, cfg, sessionID)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		inv, err = ids.NewInvocation()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}

		userContent := llm.UserContent(prompt)
		opts.Prompt = ""
		opts.Contents = append(sessionContents(sess), userContent)
		if aerr := appendTurn(ctx, sessions, sess, inv, "user", userContent); aerr != nil {
			fmt.Fprintln(stderr, aerr)
			return exitError
		}
	}

	final, code := generateToWriter(ctx, opts, stream, stdout, stderr)
	if code != exitOK {
		return code
	}

	if sess != nil && final != nil {
		ev, err := session.NewEvent(inv, model, final)
		if err == nil {
			err = sessions.Append(ctx, sess, ev)
		}
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
	}
	return exitOK
}

// generateToWriter performs the call and prints the answer, returning the
// final response for session bookkeeping.
func generateToWriter(ctx context.Context, opts llm.GenerateOptions, stream bool, stdout, stderr io.Writer) (*llm.Response, int) {
	if !stream {
		resp, err := llm.Generate(ctx, opts)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return nil, exitError
		}
		fmt.Fprintln(stdout, resp.Text())
		return resp, exitOK
	}

	result, err := llm.StreamGenerate(ctx, opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, exitError
	}
	for ev := range result.Events() {
		if ev.Err != nil {
			continue // surfaced by Response below
		}
		if ev.Response.Partial {
			fmt.Fprint(stdout, ev.Response.Text())
		}
	}
	final, err := result.Response()
	if err != nil {
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, err)
		return nil, exitError
	}
	fmt.Fprintln(stdout)
	return final, exitOK
}

func openSession(ctx context.Context, sessions session.Service, cfg *config.Config, id string) (*session.Session, error) {
	sess, err := sessions.Get(ctx, cfg.App.Name, cliUser, id)
	if errors.Is(err, session.ErrNotFound) {
		return sessions.Create(ctx, cfg.App.Name, cliUser, id)
	}
	return sess, err
}

// sessionContents replays stored turns as model input, skipping error
// frames and events without content.
func sessionContents(sess *session.Session) []llm.Content {
	var out []llm.Content
	for _, ev := range sess.Events {
		if ev.Response == nil || ev.Response.Content == nil || ev.Response.ErrorCode != "" {
			continue
		}
		out = append(out, *ev.Response.Content)
	}
	return out
}

func appendTurn(ctx context.Context, sessions session.Service, sess *session.Session, inv, author string, content llm.Content) error {
	ev, err := session.NewEvent(inv, author, &llm.Response{Content: &content, TurnComplete: true})
	if err != nil {
		return err
	}
	return sessions.Append(ctx, sess, ev)
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}
