package downloader

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DASHDownloader pulls a single representation (one itag's worth of audio or
// video) out of a DASH manifest and writes its segments, in order, to w. It
// supports both VOD manifests (type="static", one pass) and live manifests
// (type="dynamic", polled on minimumUpdatePeriod until the caller's context
// is canceled).
type DASHDownloader struct {
	Client           *http.Client
	ManifestURL      string
	RepresentationID string
	Headers          http.Header
	Transport        TransportConfig

	seenSegments     map[string]bool
	lastSeq          int64
	skippedFragments int
}

func NewDASHDownloader(client *http.Client, manifestURL, representationID string) *DASHDownloader {
	return &DASHDownloader{
		Client:           client,
		ManifestURL:      manifestURL,
		RepresentationID: representationID,
		seenSegments:     make(map[string]bool),
		lastSeq:          -1,
	}
}

func (d *DASHDownloader) WithRequestHeaders(headers http.Header) *DASHDownloader {
	d.Headers = cloneHeader(headers)
	return d
}

func (d *DASHDownloader) WithTransportConfig(cfg TransportConfig) *DASHDownloader {
	d.Transport = cfg
	return d
}

// dashMPD mirrors the subset of ISO/IEC 23009-1 this downloader understands:
// one Representation's SegmentTemplate, addressed either by $Number$/$Time$
// substitution over a SegmentTimeline or by a fixed-duration Number series.
type dashMPD struct {
	XMLName                   xml.Name     `xml:"MPD"`
	Type                      string       `xml:"type,attr"`
	MinimumUpdatePeriod       string       `xml:"minimumUpdatePeriod,attr"`
	AvailabilityStartTime     string       `xml:"availabilityStartTime,attr"`
	MediaPresentationDuration string       `xml:"mediaPresentationDuration,attr"`
	MinBufferTime             string       `xml:"minBufferTime,attr"`
	BaseURL                   string       `xml:"BaseURL"`
	Period                    []dashPeriod `xml:"Period"`
}

type dashPeriod struct {
	BaseURL       string              `xml:"BaseURL"`
	AdaptationSet []dashAdaptationSet `xml:"AdaptationSet"`
}

type dashAdaptationSet struct {
	MimeType        string               `xml:"mimeType,attr"`
	BaseURL         string               `xml:"BaseURL"`
	Representation  []dashRepresentation `xml:"Representation"`
	SegmentTemplate *dashSegmentTemplate `xml:"SegmentTemplate"`
}

type dashRepresentation struct {
	ID              string               `xml:"id,attr"`
	Bandwidth       int                  `xml:"bandwidth,attr"`
	BaseURL         string               `xml:"BaseURL"`
	SegmentTemplate *dashSegmentTemplate `xml:"SegmentTemplate"`
}

type dashSegmentTemplate struct {
	Timescale       int64                `xml:"timescale,attr"`
	Duration        int64                `xml:"duration,attr"`
	Initialization  string               `xml:"initialization,attr"`
	Media           string               `xml:"media,attr"`
	StartNumber     int64                `xml:"startNumber,attr"`
	SegmentTimeline *dashSegmentTimeline `xml:"SegmentTimeline"`
}

type dashSegmentTimeline struct {
	S []dashS `xml:"S"`
}

// dashS is one <S> entry in a SegmentTimeline: T is the segment's start time
// (defaults to the previous entry's end when omitted), D its duration, and R
// how many additional times to repeat it (R=0 means the entry occurs once).
type dashS struct {
	T *int64 `xml:"t,attr"`
	D int64  `xml:"d,attr"`
	R int64  `xml:"r,attr"`
}

type dashSegment struct {
	URL string
	Seq int64
}

func (d *DASHDownloader) Download(ctx context.Context, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		manifest, err := d.fetchManifest(ctx)
		if err != nil {
			return err
		}

		mpd, err := parseDASH(manifest)
		if err != nil {
			return err
		}

		segments, timeout, err := d.extractSegments(mpd)
		if err != nil {
			return err
		}

		isDynamic := mpd.Type == "dynamic"
		if !isDynamic && len(segments) > 1 && normalizeTransportConfig(d.Transport).MaxConcurrency > 1 {
			return d.downloadSegmentsConcurrent(ctx, segments, w)
		}

		for _, seg := range segments {
			if seg.Seq <= d.lastSeq && d.lastSeq != -1 {
				continue
			}
			if d.seenSegments[seg.URL] {
				continue
			}

			if err := d.downloadSegment(ctx, seg, w); err != nil {
				if isDynamic && shouldSkipFragmentError(err, d.Transport) {
					d.skippedFragments++
					if limit := d.Transport.MaxSkippedFragments; limit > 0 && d.skippedFragments > limit {
						return fmt.Errorf("dash: segment seq=%d: skip limit (%d) exceeded: %w", seg.Seq, limit, err)
					}
					d.lastSeq = seg.Seq
					d.seenSegments[seg.URL] = true
					continue
				}
				return err
			}

			d.lastSeq = seg.Seq
			d.seenSegments[seg.URL] = true
		}

		if !isDynamic {
			return nil
		}

		sleepTime := timeout
		if sleepTime == 0 {
			sleepTime = 5 * time.Second
		}

		timer := time.NewTimer(sleepTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *DASHDownloader) downloadSegmentsConcurrent(ctx context.Context, segments []dashSegment, w io.Writer) error {
	type result struct {
		seq  int64
		url  string
		body []byte
		err  error
	}
	cfg := normalizeTransportConfig(d.Transport)
	sem := make(chan struct{}, cfg.MaxConcurrency)
	out := make([]result, len(segments))
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, seg := range segments {
		wg.Add(1)
		i, seg := i, seg
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			body, err := doGETBytesWithRetry(ctx, d.Client, seg.URL, d.Headers, d.Transport)
			out[i] = result{seq: seg.Seq, url: seg.URL, body: body, err: err}
			if err != nil {
				cancel()
			}
		}()
	}
	wg.Wait()

	for _, r := range out {
		if r.err != nil {
			return fmt.Errorf("dash: segment seq=%d: %w", r.seq, r.err)
		}
		if _, err := w.Write(r.body); err != nil {
			return err
		}
		d.lastSeq = r.seq
		d.seenSegments[r.url] = true
	}
	return nil
}

func (d *DASHDownloader) fetchManifest(ctx context.Context) ([]byte, error) {
	return doGETBytesWithRetry(ctx, d.Client, d.ManifestURL, d.Headers, d.Transport)
}

func parseDASH(data []byte) (*dashMPD, error) {
	var mpd dashMPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("dash: parse manifest: %w", err)
	}
	return &mpd, nil
}

// extractSegments resolves the Representation matching d.RepresentationID and
// expands its SegmentTemplate into a concrete, ordered segment list. It
// handles both addressing modes DASH allows for a template: an explicit
// SegmentTimeline (YouTube's usual choice for live manifests) and a fixed
// per-segment @duration with no timeline (used by some static manifests).
func (d *DASHDownloader) extractSegments(mpd *dashMPD) ([]dashSegment, time.Duration, error) {
	rep, adapt, period, found := d.findRepresentation(mpd)
	if !found {
		return nil, 0, fmt.Errorf("dash: representation %q not found in manifest", d.RepresentationID)
	}

	tmpl := rep.SegmentTemplate
	if tmpl == nil {
		tmpl = adapt.SegmentTemplate
	}
	if tmpl == nil {
		return nil, 0, fmt.Errorf("dash: representation %q has no SegmentTemplate", d.RepresentationID)
	}

	baseURL := resolveBaseURL(mpd.BaseURL, period.BaseURL, adapt.BaseURL, rep.BaseURL)

	var segments []dashSegment
	switch {
	case tmpl.SegmentTimeline != nil:
		segments = expandTimeline(tmpl, rep, d.RepresentationID, baseURL, d.ManifestURL)
	case tmpl.Duration > 0:
		segments = expandFixedDuration(tmpl, mpd, rep, d.RepresentationID, baseURL, d.ManifestURL)
	default:
		return nil, 0, fmt.Errorf("dash: representation %q has neither SegmentTimeline nor a fixed @duration", d.RepresentationID)
	}

	timeout := 5 * time.Second
	if mpd.MinimumUpdatePeriod != "" {
		if parsed, err := parseISODuration(mpd.MinimumUpdatePeriod); err == nil {
			timeout = parsed
		}
	}

	return segments, timeout, nil
}

func (d *DASHDownloader) findRepresentation(mpd *dashMPD) (rep *dashRepresentation, adapt *dashAdaptationSet, period dashPeriod, found bool) {
	for _, p := range mpd.Period {
		for i, a := range p.AdaptationSet {
			for j, r := range a.Representation {
				if r.ID == d.RepresentationID {
					return &p.AdaptationSet[i].Representation[j], &p.AdaptationSet[i], p, true
				}
			}
		}
	}
	return nil, nil, dashPeriod{}, false
}

// resolveBaseURL implements the hierarchical BaseURL resolution DASH defines:
// each level (MPD, Period, AdaptationSet, Representation) may override the
// one above it, and each override is resolved relative to its parent rather
// than replacing it outright.
func resolveBaseURL(levels ...string) string {
	base := ""
	for _, level := range levels {
		if level == "" {
			continue
		}
		if base == "" || strings.Contains(level, "://") {
			base = level
			continue
		}
		base += level
	}
	return base
}

func expandTimeline(tmpl *dashSegmentTemplate, rep *dashRepresentation, repID, baseURL, manifestURL string) []dashSegment {
	var segments []dashSegment
	currentTime := int64(0)
	currentSeq := tmpl.StartNumber
	if currentSeq == 0 {
		currentSeq = 1
	}

	for _, s := range tmpl.SegmentTimeline.S {
		if s.T != nil {
			currentTime = *s.T
		}

		// r=0 means the entry occurs once; r=N means N further repeats.
		count := s.R + 1
		for i := int64(0); i < count; i++ {
			segments = append(segments, dashSegment{
				URL: resolveURL(manifestURL, baseURL+substituteTemplate(tmpl.Media, repID, currentSeq, currentTime, rep.Bandwidth)),
				Seq: currentSeq,
			})
			currentTime += s.D
			currentSeq++
		}
	}
	return segments
}

// expandFixedDuration covers templates that give a per-segment @duration
// instead of an explicit timeline: the segment count is derived from the
// period/MPD's total duration divided by the per-segment duration.
func expandFixedDuration(tmpl *dashSegmentTemplate, mpd *dashMPD, rep *dashRepresentation, repID, baseURL, manifestURL string) []dashSegment {
	timescale := tmpl.Timescale
	if timescale == 0 {
		timescale = 1
	}

	total, err := parseISODuration(mpd.MediaPresentationDuration)
	if err != nil || total <= 0 {
		return nil
	}
	segDuration := time.Duration(tmpl.Duration) * time.Second / time.Duration(timescale)
	if segDuration <= 0 {
		return nil
	}
	count := int64(total/segDuration) + 1

	startNumber := tmpl.StartNumber
	if startNumber == 0 {
		startNumber = 1
	}

	segments := make([]dashSegment, 0, count)
	currentTime := int64(0)
	for seq := startNumber; seq < startNumber+count; seq++ {
		segments = append(segments, dashSegment{
			URL: resolveURL(manifestURL, baseURL+substituteTemplate(tmpl.Media, repID, seq, currentTime, rep.Bandwidth)),
			Seq: seq,
		})
		currentTime += tmpl.Duration
	}
	return segments
}

func substituteTemplate(media, repID string, number, time int64, bandwidth int) string {
	r := strings.NewReplacer(
		"$RepresentationID$", repID,
		"$Number$", fmt.Sprintf("%d", number),
		"$Time$", fmt.Sprintf("%d", time),
		"$Bandwidth$", fmt.Sprintf("%d", bandwidth),
	)
	return r.Replace(media)
}

func (d *DASHDownloader) downloadSegment(ctx context.Context, seg dashSegment, w io.Writer) error {
	body, err := doGETBytesWithRetry(ctx, d.Client, seg.URL, d.Headers, d.Transport)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// parseISODuration parses the narrow slice of ISO 8601 durations DASH
// manifests use (PT#H#M#S, any component optional); the standard library has
// no ISO 8601 duration parser.
func parseISODuration(s string) (time.Duration, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "PT")
	if s == "" {
		return 0, fmt.Errorf("dash: empty duration")
	}

	var total time.Duration
	var num strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num.WriteRune(r)
		case r == 'H' || r == 'M' || r == 'S':
			v, err := time.ParseDuration(num.String() + string(strings.ToLower(string(r))))
			if err != nil {
				return 0, fmt.Errorf("dash: invalid duration component %q: %w", num.String()+string(r), err)
			}
			total += v
			num.Reset()
		default:
			return 0, fmt.Errorf("dash: unexpected character %q in duration %q", r, s)
		}
	}
	if num.Len() > 0 {
		return 0, fmt.Errorf("dash: trailing unit-less component %q in duration %q", num.String(), s)
	}
	return total, nil
}
