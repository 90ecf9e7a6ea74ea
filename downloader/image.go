package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"scrollgrab/parser"
)

// Status is the result class of one download attempt
type Status int

const (
	Saved Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Saved:
		return "saved"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Outcome describes what happened to one image
type Outcome struct {
	Status Status
	URL    string
	Path   string
	Index  int
	Err    error
}

// canvasExportJS draws the tab's image onto a canvas and returns it as a
// data URL. Must run on a page where the image is same-origin.
func canvasExportJS(mime string) string {
	return fmt.Sprintf(`(async () => {
	const img = document.querySelector('img');
	if (!img) return '';
	if (!img.complete) {
		await new Promise((resolve) => { img.onload = resolve; img.onerror = resolve; });
	}
	if (!img.naturalWidth || !img.naturalHeight) return '';
	const canvas = document.createElement('canvas');
	canvas.width = img.naturalWidth;
	canvas.height = img.naturalHeight;
	canvas.getContext('2d').drawImage(img, 0, 0);
	return canvas.toDataURL(%q, 0.95);
})()`, mime)
}

// imageURL reads the first usable URL attribute of el and resolves it
// against the page location. Inline data: placeholders are passed over.
func imageURL(el Element, attrs []string, base string) string {
	for _, name := range attrs {
		v := strings.TrimSpace(el.Attr(name))
		if v == "" || strings.HasPrefix(v, "data:") {
			continue
		}
		return resolveURL(base, v)
	}
	return ""
}

func resolveURL(base, ref string) string {
	if base == "" {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// downloadImage saves one image as <prefix>_<last+count+1>.<ext>. Only a
// Saved outcome advances the counter.
func (s *Session) downloadImage(ctx context.Context, imgURL, referer string) Outcome {
	out := Outcome{URL: imgURL}
	log := s.log.With().Str("url", imgURL).Logger()

	ext, ok := parser.SupportedExtension(imgURL)
	if !ok {
		out.Status = Skipped
		out.Err = ErrUnsupportedFormat
		log.Debug().Msg("skipping unsupported image format")
		return s.record(out)
	}

	if s.seen != nil && s.seen.Contains(imgURL) {
		out.Status = Skipped
		out.Err = ErrDuplicate
		log.Debug().Msg("skipping duplicate image")
		return s.record(out)
	}

	out.Index = s.lastIndex + s.downloaded + 1
	out.Path = parser.OutputPath(s.dir, s.prefix, out.Index, ext)

	start := time.Now()
	data, err := s.exportViaTab(ctx, imgURL, ext)
	if err != nil && s.fallback != nil && ctx.Err() == nil {
		log.Debug().Err(err).Msg("canvas export failed, trying http fallback")
		var fbErr error
		data, fbErr = s.fallback.Fetch(ctx, imgURL, referer)
		if fbErr != nil {
			err = errors.Join(err, fbErr)
		} else {
			err = nil
		}
	}
	if err != nil {
		out.Status = Failed
		out.Err = err
		log.Warn().Err(err).Msg("image download failed")
		return s.record(out)
	}

	data, err = parser.ConformImage(data, ext)
	if err != nil {
		out.Status = Failed
		out.Err = fmt.Errorf("failed to convert image: %w", err)
		log.Warn().Err(out.Err).Msg("image download failed")
		return s.record(out)
	}

	if err := parser.SaveImage(data, out.Path); err != nil {
		out.Status = Failed
		out.Err = err
		log.Error().Err(err).Str("path", out.Path).Msg("failed to save image")
		return s.record(out)
	}

	s.downloaded++
	if s.seen != nil {
		s.seen.Add(imgURL, struct{}{})
	}
	s.metrics.ObserveExport(time.Since(start))

	out.Status = Saved
	log.Info().Str("file", parser.ImageFileName(s.prefix, out.Index, ext)).Int("bytes", len(data)).Msg("saved image")
	return s.record(out)
}

// exportViaTab opens the image in its own tab so the canvas is not tainted,
// then reads the pixels back. The tab is closed and focus returned on every
// path.
func (s *Session) exportViaTab(ctx context.Context, imgURL, ext string) ([]byte, error) {
	tab, err := s.browser.OpenTab(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		cleanup := context.WithoutCancel(ctx)
		if err := tab.Close(); err != nil {
			s.log.Debug().Err(err).Msg("failed to close image tab")
		}
		if err := s.browser.Activate(cleanup); err != nil {
			s.log.Debug().Err(err).Msg("failed to refocus main tab")
		}
	}()

	if err := tab.Navigate(ctx, imgURL); err != nil {
		return nil, err
	}
	if _, err := tab.Elements(ctx, CSS("img"), s.cfg.Download.ImageWait); err != nil {
		return nil, err
	}

	var dataURL string
	if err := tab.Evaluate(ctx, canvasExportJS(parser.MimeType(ext)), &dataURL); err != nil {
		return nil, err
	}
	if dataURL == "" || dataURL == "data:," {
		return nil, ErrEmptyExport
	}

	data, err := parser.DecodeDataURL(dataURL)
	if errors.Is(err, parser.ErrEmptyDataURL) {
		return nil, ErrEmptyExport
	}
	return data, err
}

func (s *Session) record(out Outcome) Outcome {
	switch out.Status {
	case Skipped:
		s.skipped++
	case Failed:
		s.failed++
		s.metrics.IncError(out.Err)
	}
	s.metrics.IncImage(out.Status)
	return out
}
