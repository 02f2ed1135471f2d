package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"chatview-server/internal/enrich"
	"chatview-server/internal/platform"
	"chatview-server/internal/transcript"
	"chatview-server/internal/types"
	"chatview-server/templates"
)

type renderOptions struct {
	in           string
	out          string
	viewerID     string
	roles        []string
	timezone     string
	noImages     bool
	noAnimations bool
	workers      int
	verbose      bool
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a message dump to HTML",
		Example: `  transcript render --in general.json --tz Europe/Berlin --out general.html
  curl -s "$API/channels/1/messages?limit=100" | transcript render --in - --no-images`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.in, "in", "-", "dump file, or - for stdin")
	f.StringVar(&opts.out, "out", "-", "output file, or - for stdout")
	f.StringVar(&opts.viewerID, "viewer", "", "render as this user id (mention highlighting)")
	f.StringSliceVar(&opts.roles, "roles", nil, "role ids the viewer holds")
	f.StringVar(&opts.timezone, "tz", "", "IANA timezone for timestamps and day separators (default local)")
	f.BoolVar(&opts.noImages, "no-images", false, "replace images, avatars and emoji images with text")
	f.BoolVar(&opts.noAnimations, "no-animations", false, "use static variants of animated emoji and stickers")
	f.IntVar(&opts.workers, "workers", 4, "concurrent reference lookups")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log reference failures")
	return cmd
}

// dump is a saved channel. A bare JSON array is read as its messages.
type dump struct {
	Channel  *types.Channel    `json:"channel"`
	Roles    []types.Role      `json:"roles"`
	Channels []types.Channel   `json:"channels"`
	Messages []json.RawMessage `json:"messages"`
}

func parseDump(data []byte) (*dump, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty dump")
	}
	var d dump
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &d.Messages); err != nil {
			return nil, fmt.Errorf("decode message array: %w", err)
		}
	case '{':
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode dump: %w", err)
		}
	default:
		return nil, errors.New("dump must be a JSON array or object")
	}
	return &d, nil
}

// dumpFetcher answers reference lookups from the dump itself.
type dumpFetcher map[string]types.Message

func (f dumpFetcher) Message(_ context.Context, _, messageID string) (*types.Message, error) {
	m, ok := f[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: message %s not in dump", platform.ErrNotFound, messageID)
	}
	return &m, nil
}

type exportPage struct {
	Title      string
	SiteName   string
	Generated  string
	Standalone bool
	Channel    *types.Channel
	Transcript template.HTML
	ETag       string
}

func runRender(ctx context.Context, stdin io.Reader, stdout io.Writer, opts renderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level := slog.LevelError
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var (
		data []byte
		err  error
	)
	if opts.in == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(opts.in)
	}
	if err != nil {
		return fmt.Errorf("read dump: %w", err)
	}

	var out io.Writer = stdout
	if opts.out != "-" {
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return renderDump(ctx, data, out, opts, log)
}

func renderDump(ctx context.Context, data []byte, out io.Writer, opts renderOptions, log *slog.Logger) error {
	d, err := parseDump(data)
	if err != nil {
		return err
	}

	msgs := make([]types.Message, 0, len(d.Messages))
	byID := make(dumpFetcher, len(d.Messages))
	for i, raw := range d.Messages {
		m, err := platform.DecodeMessage(raw)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, m)
		byID[m.ID] = m
	}
	// History endpoints return newest first.
	slices.SortStableFunc(msgs, func(a, b types.Message) int { return a.CreatedAt.Compare(b.CreatedAt) })

	prefs := types.Preferences{ShowImages: !opts.noImages, ShowAnimations: !opts.noAnimations, Timezone: opts.timezone}
	if opts.timezone != "" {
		if _, err := time.LoadLocation(opts.timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", opts.timezone)
		}
	}
	viewer := types.Viewer{ID: opts.viewerID, RoleIDs: opts.roles, Preferences: prefs}

	ch := types.Channel{Name: "transcript"}
	if d.Channel != nil {
		ch = *d.Channel
	} else if len(msgs) > 0 {
		ch.ID = msgs[0].ChannelID
	}

	dir := enrich.NewStaticDirectory()
	dir.Channels[ch.ID] = ch
	for _, c := range d.Channels {
		dir.Channels[c.ID] = c
	}
	for _, r := range d.Roles {
		dir.Roles[r.ID] = r
	}
	for i := range msgs {
		dir.AddUsers(msgs[i].Author)
		dir.AddUsers(msgs[i].Mentions...)
	}

	env := enrich.NewEnv(viewer)
	env.Dir = dir
	env.Log = log

	refs := enrich.NewResolver(byID, log).Prefetch(ctx, msgs, opts.workers)
	html, err := transcript.NewComposer(env, refs).Compose(msgs)
	if err != nil {
		return err
	}

	page := template.Must(template.New("export").Parse(templates.GetBaseTemplates() + templates.GetTranscriptTemplate()))
	return page.ExecuteTemplate(out, "base", exportPage{
		Title:      "#" + ch.Name,
		SiteName:   "chatview",
		Generated:  time.Now().In(prefs.Location()).Format("January 2, 2006 3:04 PM"),
		Standalone: true,
		Channel:    &ch,
		Transcript: template.HTML(html),
		ETag:       transcript.ETag(html),
	})
}
