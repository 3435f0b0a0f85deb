package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/CTAG07/Lyrian/pkg/markov"
	"github.com/chzyer/readline"
)

var errQuit = errors.New("quit")

// shell is the interactive generation REPL started by -shell.
type shell struct {
	store  *markov.Store
	gen    *markov.Generator
	config GenerationConfig
	rl     *readline.Instance
	out    io.Writer

	modelName string
	model     *markov.Model
	metric    markov.Metric
	lines     int
	seed      string
}

// runShell opens the configured store and runs the REPL until /quit or EOF.
func runShell(configPath string) error {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	// Keep the terminal quiet unless something goes wrong.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cm.SetLogger(logger)

	store, closeStore, err := openStore(config, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	gen, err := newGenerator(config, logger)
	if err != nil {
		return err
	}

	metric, err := markov.ParseMetric(config.Generation.DefaultMetric)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lyrian> ",
		HistoryFile:     config.Server.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start readline: %w", err)
	}

	s := &shell{
		store:  store,
		gen:    gen,
		config: *config.Generation,
		rl:     rl,
		out:    rl.Stdout(),
		metric: metric,
		lines:  1,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return s.run(ctx)
}

func (s *shell) run(ctx context.Context) error {
	defer func() { _ = s.rl.Close() }()

	_, _ = fmt.Fprintln(s.out, "Type a number to generate lines of that length. /help lists commands.")

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if err = s.handleCommand(ctx, strings.Fields(line)); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
			}
			continue
		}

		n, err := strconv.Atoi(line)
		if err != nil {
			_, _ = fmt.Fprintln(s.out, "Enter a line length or a /command.")
			continue
		}
		if err = s.generate(ctx, n); err != nil {
			_, _ = fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func (s *shell) handleCommand(ctx context.Context, parts []string) error {
	args := parts[1:]
	switch parts[0] {
	case "/quit", "/exit", "/q":
		return errQuit

	case "/help", "/h":
		s.printHelp()

	case "/models":
		infos, err := s.store.GetModelInfos(ctx)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			_, _ = fmt.Fprintln(s.out, "No models stored. Train one with /train NAME FILE.")
		}
		for _, info := range infos {
			marker := " "
			if info.Name == s.modelName {
				marker = "*"
			}
			_, _ = fmt.Fprintf(s.out, "%s %s (%s)\n", marker, info.Name, info.KeyMode)
		}

	case "/use":
		if len(args) != 1 {
			return errors.New("usage: /use NAME")
		}
		return s.use(ctx, args[0])

	case "/metric":
		if len(args) != 1 {
			_, _ = fmt.Fprintf(s.out, "Metric: %s\n", s.metric)
			return nil
		}
		metric, err := markov.ParseMetric(args[0])
		if err != nil {
			return err
		}
		s.metric = metric

	case "/lines":
		if len(args) != 1 {
			_, _ = fmt.Fprintf(s.out, "Lines: %d\n", s.lines)
			return nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 || n > s.config.MaxLines {
			return fmt.Errorf("lines must be between 1 and %d", s.config.MaxLines)
		}
		s.lines = n

	case "/seed":
		if len(args) == 0 {
			s.seed = ""
			_, _ = fmt.Fprintln(s.out, "Seed cleared.")
			return nil
		}
		s.seed = args[0]

	case "/train":
		if len(args) != 2 {
			return errors.New("usage: /train NAME FILE")
		}
		return s.train(ctx, args[0], args[1])

	case "/export":
		if len(args) != 1 {
			return errors.New("usage: /export FILE")
		}
		if s.model == nil {
			return errors.New("no model selected, use /use NAME")
		}
		if err := markov.SaveModelFile(ctx, args[0], s.model); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(s.out, "Exported %s to %s.\n", s.modelName, args[0])

	case "/import":
		if len(args) != 2 {
			return errors.New("usage: /import NAME FILE")
		}
		model, err := markov.LoadModelFile(args[1])
		if err != nil {
			return err
		}
		if _, err = s.store.SaveModel(ctx, args[0], model); err != nil {
			return err
		}
		return s.use(ctx, args[0])

	default:
		_, _ = fmt.Fprintf(s.out, "Unknown command: %s\n", parts[0])
	}
	return nil
}

func (s *shell) use(ctx context.Context, name string) error {
	model, err := s.store.LoadModel(ctx, name)
	if err != nil {
		return err
	}
	s.modelName = name
	s.model = model
	stats := model.Stats()
	_, _ = fmt.Fprintf(s.out, "Using %s: %d states, %d transitions, shortest token %d mora / %d syllable.\n",
		name, stats.States, stats.Transitions,
		model.MinLength(markov.MetricMora), model.MinLength(markov.MetricSyllable))
	return nil
}

func (s *shell) train(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	keyMode, err := markov.ParseKeyMode(s.config.KeyMode)
	if err != nil {
		return err
	}
	model, err := s.gen.Train(ctx, f, markov.WithKeyMode(keyMode))
	if err != nil {
		return err
	}
	if _, err = s.store.SaveModel(ctx, name, model); err != nil {
		return err
	}
	return s.use(ctx, name)
}

func (s *shell) generate(ctx context.Context, length int) error {
	if s.model == nil {
		return errors.New("no model selected, use /use NAME")
	}
	if length > s.config.MaxLength {
		return fmt.Errorf("length must be at most %d", s.config.MaxLength)
	}
	opts := []markov.GenerateOption{
		markov.WithMaxAttempts(s.config.MaxAttempts),
		markov.WithMaxSteps(s.config.MaxSteps),
	}
	if s.seed != "" {
		opts = append(opts, markov.WithSeed(s.seed))
	}
	lyrics, err := s.gen.GenerateLines(ctx, s.model, length, s.lines, s.metric, opts...)
	if err != nil {
		return err
	}
	for _, l := range lyrics {
		_, _ = fmt.Fprintf(s.out, "%s\t(%s)\n", l.Join(), l.Reading())
	}
	return nil
}

func (s *shell) printHelp() {
	_, _ = fmt.Fprintln(s.out, `Commands:
  N                   generate lines of length N in the current metric
  /models             list stored models
  /use NAME           select a model
  /metric mora|syllable
  /lines N            lines per generation
  /seed [WORD]        start lines after WORD, or clear the seed
  /train NAME FILE    train a model from a text file, one sentence per line
  /export FILE        write the selected model as a JSON snapshot
  /import NAME FILE   store a JSON snapshot under NAME
  /help, /quit`)
}
