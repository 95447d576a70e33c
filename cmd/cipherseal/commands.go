package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/cipherseal"
	"github.com/yyyoichi/cipherseal/internal/batch"
	"github.com/yyyoichi/cipherseal/internal/imageio"
	"github.com/yyyoichi/cipherseal/internal/quality"
)

const (
	kindImage = "image"
	kindText  = "text"
)

func checkKind(kind string) error {
	if kind != kindImage && kind != kindText {
		return fmt.Errorf("%w: carrier must be image or text, got %q", errUsage, kind)
	}
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	out := fs.String("o", "", "output file")
	msg := fs.String("w", "", "watermark message")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 || *out == "" {
		return fmt.Errorf("%w: add image|text <in> -o <out> [-w message]", errUsage)
	}
	kind, in := pos[0], pos[1]
	if err := checkKind(kind); err != nil {
		return err
	}
	sealer, err := a.cfg.Sealer()
	if err != nil {
		return err
	}
	res, err := addFile(ctx, sealer, kind, in, *out, []byte(*msg))
	if err != nil {
		return err
	}
	a.logAdded(in, *out, res)
	fmt.Fprintln(a.stdout, res.receipt.ContentID)
	return nil
}

func (a *app) detect(ctx context.Context, args []string) error {
	fs := newFlagSet("detect")
	strip := fs.String("strip", "", "write the text without markers to this file")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return fmt.Errorf("%w: detect image|text <in>", errUsage)
	}
	kind, in := pos[0], pos[1]
	if err := checkKind(kind); err != nil {
		return err
	}
	if *strip != "" && kind != kindText {
		return fmt.Errorf("%w: -strip applies to text only", errUsage)
	}
	sealer, err := a.cfg.Sealer()
	if err != nil {
		return err
	}
	report, err := detectFile(ctx, sealer, kind, in, *strip)
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"file":    in,
		"outcome": report.Outcome,
	}).Debug("detection finished")
	if err := printReport(a.stdout, report, *asJSON); err != nil {
		return err
	}
	if report.Outcome == cipherseal.TagMismatch {
		return fmt.Errorf("%w: %w", errMismatch, report.Reason)
	}
	return nil
}

func (a *app) batch(ctx context.Context, args []string) error {
	fs := newFlagSet("batch")
	out := fs.String("o", "", "output directory")
	msg := fs.String("w", "", "watermark message")
	workers := fs.Int("j", a.cfg.Batch.Workers, "files processed in parallel")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 3 {
		return fmt.Errorf("%w: batch add|detect image|text <in...>", errUsage)
	}
	op, kind, files := pos[0], pos[1], pos[2:]
	if err := checkKind(kind); err != nil {
		return err
	}
	if *workers < 1 {
		return fmt.Errorf("%w: -j must be at least 1", errUsage)
	}

	switch op {
	case "add":
		if *out == "" {
			return fmt.Errorf("%w: batch add needs -o <dir>", errUsage)
		}
		sealer, err := a.cfg.Sealer()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(*out, 0o755); err != nil {
			return err
		}
		results, err := batch.Run(ctx, files, *workers, func(ctx context.Context, in string) (added, error) {
			return addFile(ctx, sealer, kind, in, filepath.Join(*out, outputName(kind, in)), []byte(*msg))
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != nil {
				a.log.WithError(r.Err).WithField("file", r.Item).Error("embed failed")
				continue
			}
			a.logAdded(r.Item, filepath.Join(*out, outputName(kind, r.Item)), r.Value)
			fmt.Fprintf(a.stdout, "%s\t%s\n", r.Item, r.Value.receipt.ContentID)
		}
		return batchErr(batch.Failed(results), len(files))

	case "detect":
		sealer, err := a.cfg.Sealer()
		if err != nil {
			return err
		}
		results, err := batch.Run(ctx, files, *workers, func(ctx context.Context, in string) (cipherseal.Report, error) {
			return detectFile(ctx, sealer, kind, in, "")
		})
		if err != nil {
			return err
		}
		mismatches := 0
		for _, r := range results {
			if r.Err != nil {
				a.log.WithError(r.Err).WithField("file", r.Item).Error("detect failed")
				continue
			}
			line := r.Value.Outcome.String()
			switch r.Value.Outcome {
			case cipherseal.Verified:
				line += "\t" + r.Value.ContentID.String()
			case cipherseal.TagMismatch:
				mismatches++
			}
			fmt.Fprintf(a.stdout, "%s\t%s\n", r.Item, line)
		}
		if err := batchErr(batch.Failed(results), len(files)); err != nil {
			return err
		}
		if mismatches > 0 {
			return fmt.Errorf("%w: %d of %d files", errMismatch, mismatches, len(files))
		}
		return nil
	}
	return fmt.Errorf("%w: batch operation must be add or detect, got %q", errUsage, op)
}

func batchErr(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d files failed", failed, total)
}

func (a *app) quality(args []string) error {
	fs := newFlagSet("quality")
	asJSON := fs.Bool("json", false, "print the metrics as JSON")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return fmt.Errorf("%w: quality <original> <marked>", errUsage)
	}
	original, _, err := imageio.ReadFile(pos[0])
	if err != nil {
		return err
	}
	marked, _, err := imageio.ReadFile(pos[1])
	if err != nil {
		return err
	}
	m, err := quality.Compare(cipherseal.FromImage(original), cipherseal.FromImage(marked))
	if err != nil {
		return err
	}
	if *asJSON {
		return json.NewEncoder(a.stdout).Encode(m)
	}
	_, err = fmt.Fprintln(a.stdout, m)
	return err
}

// added is the outcome of one add. metrics is set for images only.
type added struct {
	receipt cipherseal.Receipt
	metrics *quality.Metrics
}

func addFile(ctx context.Context, sealer *cipherseal.Sealer, kind, in, out string, message []byte) (added, error) {
	if kind == kindImage {
		img, _, err := imageio.ReadFile(in)
		if err != nil {
			return added{}, err
		}
		marked, receipt, err := sealer.AddImage(ctx, img, message)
		if err != nil {
			return added{}, fmt.Errorf("%s: %w", in, err)
		}
		m, err := quality.Compare(cipherseal.FromImage(img), cipherseal.FromImage(marked))
		if err != nil {
			return added{}, err
		}
		return added{receipt: receipt, metrics: &m}, imageio.WriteFile(out, marked)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return added{}, err
	}
	marked, receipt, err := sealer.AddText(ctx, string(data), message)
	if err != nil {
		return added{}, fmt.Errorf("%s: %w", in, err)
	}
	return added{receipt: receipt}, os.WriteFile(out, []byte(marked), 0o644)
}

func (a *app) logAdded(in, out string, res added) {
	fields := logrus.Fields{
		"file":       in,
		"output":     out,
		"content_id": res.receipt.ContentID,
		"bits":       res.receipt.PayloadBits,
		"capacity":   res.receipt.Capacity,
	}
	if m := res.metrics; m != nil {
		fields["changed"] = m.Changed
		fields["max_delta"] = m.MaxDelta
		// +Inf has no JSON form
		if math.IsInf(m.PSNR, 0) {
			fields["psnr"] = "inf"
		} else {
			fields["psnr"] = m.PSNR
		}
	}
	a.log.WithFields(fields).Info("watermark embedded")
}

func detectFile(ctx context.Context, sealer *cipherseal.Sealer, kind, in, strip string) (cipherseal.Report, error) {
	if kind == kindImage {
		img, _, err := imageio.ReadFile(in)
		if err != nil {
			return cipherseal.Report{}, err
		}
		return sealer.DetectImage(ctx, img)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return cipherseal.Report{}, err
	}
	report, err := sealer.DetectText(ctx, string(data))
	if err != nil {
		return cipherseal.Report{}, fmt.Errorf("%s: %w", in, err)
	}
	if strip != "" {
		if err := os.WriteFile(strip, []byte(cipherseal.StripText(string(data))), 0o644); err != nil {
			return cipherseal.Report{}, err
		}
	}
	return report, nil
}

// outputName keeps the base name of in. Images in lossy formats are
// written as PNG.
func outputName(kind, in string) string {
	base := filepath.Base(in)
	if kind != kindImage {
		return base
	}
	if f, err := imageio.FormatFromPath(in); err == nil && f.Lossless() {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
}

type jsonReport struct {
	Outcome   cipherseal.Outcome `json:"outcome"`
	ContentID string             `json:"content_id,omitempty"`
	Message   string             `json:"message,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

func printReport(w io.Writer, r cipherseal.Report, asJSON bool) error {
	if asJSON {
		out := jsonReport{Outcome: r.Outcome}
		if r.Outcome == cipherseal.Verified {
			out.ContentID = r.ContentID.String()
			out.Message = string(r.Message)
		}
		if r.Reason != nil {
			out.Reason = r.Reason.Error()
		}
		return json.NewEncoder(w).Encode(out)
	}
	var err error
	switch r.Outcome {
	case cipherseal.Verified:
		_, err = fmt.Fprintf(w, "%s %s %q\n", r.Outcome, r.ContentID, r.Message)
	default:
		_, err = fmt.Fprintf(w, "%s: %v\n", r.Outcome, r.Reason)
	}
	return err
}
