package overlay

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
	"github.com/stepcord/stepcord/internal/summary"
	"github.com/valyala/fasttemplate"
)

const DefaultTemplate = "{{title}}\n{{subtitle}}\n"

type Target struct {
	Path     string
	Template string
}

type Options struct {
	Fs      afero.Fs
	Targets map[kind.Kind]Target
	Now     func() time.Time
}

type Instance struct {
	fs      afero.Fs
	now     func() time.Time
	targets map[kind.Kind]target
}

type target struct {
	path string
	tmpl *fasttemplate.Template
}

// New compiles every template up front so a bad template fails at startup
// instead of on every fetch.
func New(o Options) (instance.Overlay, error) {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	i := &Instance{
		fs:      o.Fs,
		now:     o.Now,
		targets: make(map[kind.Kind]target),
	}

	for k, t := range o.Targets {
		if t.Path == "" {
			continue
		}

		src := t.Template
		if src == "" {
			src = DefaultTemplate
		}

		tmpl, err := fasttemplate.NewTemplate(src, "{{", "}}")
		if err != nil {
			return nil, fmt.Errorf("overlay template for %s: %w", k, err)
		}

		i.targets[k] = target{path: t.Path, tmpl: tmpl}
	}

	return i, nil
}

func (i *Instance) Write(k kind.Kind, s summary.Summary, st status.Status) error {
	t, ok := i.targets[k]
	if !ok {
		return nil
	}

	daily, monthly, yearly := s.Values()

	out := t.tmpl.ExecuteString(map[string]interface{}{
		"kind":        k.String(),
		"title":       st.Title,
		"subtitle":    st.Subtitle,
		"daily":       daily,
		"monthly":     monthly,
		"yearly":      yearly,
		"daily_raw":   strconv.FormatInt(s.Daily, 10),
		"monthly_raw": strconv.FormatInt(s.Monthly, 10),
		"yearly_raw":  strconv.FormatInt(s.Yearly, 10),
		"updated":     i.now().Format(time.RFC3339),
	})

	if err := i.fs.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("overlay dir for %s: %w", k, err)
	}

	// Write next to the target and rename so readers never see a partial file.
	tmp := t.path + ".tmp"
	if err := afero.WriteFile(i.fs, tmp, []byte(out), 0o644); err != nil {
		return fmt.Errorf("overlay write for %s: %w", k, err)
	}

	if err := i.fs.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("overlay rename for %s: %w", k, err)
	}

	return nil
}
