// Package demo populates an empty catalog with a small, consistent data set:
// one plate imaged at two time points, the reference records its sections
// need and a tagged subset of items.
package demo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"labcatalog/internal/core"
	blobcore "labcatalog/internal/infra/blob/core"
	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

// Error is the error class for seeding failures.
var Error = errs.Class("demo")

// PlateName names the seeded plate. Seed refuses to run when it exists.
const PlateName = "demo-plate-1"

const (
	rows     = "ABCD"
	cols     = 6
	sites    = 2
	channels = 2
)

// Summary counts what Seed created.
type Summary struct {
	PlateID    string `json:"plate_id"`
	TimePoints int    `json:"timepoints"`
	Items      int    `json:"items"`
	Sections   int    `json:"sections"`
	Tagged     int    `json:"tagged"`
}

// Seed writes demo images to the service's blob store and ingests them.
// Images are only written when the store has none under the demo prefix, so
// a bucket prepared out of band is reused as is.
func Seed(ctx context.Context, svc *core.Service) (Summary, error) {
	log := svc.Logger().Named("demo")
	var sum Summary

	plates, err := svc.ListPlates(ctx)
	if err != nil {
		return sum, Error.Wrap(err)
	}
	for _, p := range plates {
		if p.Name == PlateName {
			return sum, Error.Wrap(domain.ErrConflict.New("plate %q already seeded", PlateName))
		}
	}

	dapi, _, err := svc.CreateModality(ctx, domain.Modality{Name: "DAPI", Target: "nucleus", Comment: "Hoechst counterstain"})
	if err != nil {
		return sum, Error.Wrap(err)
	}
	gfp, _, err := svc.CreateModality(ctx, domain.Modality{Name: "GFP", Target: "tubulin"})
	if err != nil {
		return sum, Error.Wrap(err)
	}
	stack, _, err := svc.CreateStack(ctx, domain.Stack{
		Name: "nuclei-tubulin",
		Channels: []domain.StackChannel{
			{ModalityID: dapi.ID, Chan: 1, Regexp: `_w1`},
			{ModalityID: gfp.ID, Chan: 2, Regexp: `_w2`},
		},
	})
	if err != nil {
		return sum, Error.Wrap(err)
	}

	hela, _, err := svc.CreateCell(ctx, domain.Cell{Name: "HeLa", Code: "hela", Comment: "cervical carcinoma"})
	if err != nil {
		return sum, Error.Wrap(err)
	}
	u2os, _, err := svc.CreateCell(ctx, domain.Cell{Name: "U2OS", Code: "u2os", Comment: "osteosarcoma"})
	if err != nil {
		return sum, Error.Wrap(err)
	}

	solvent, err := property(ctx, svc, nil, "class", "solvent")
	if err != nil {
		return sum, err
	}
	inhibitor, err := property(ctx, svc, nil, "class", "kinase inhibitor")
	if err != nil {
		return sum, err
	}
	egfr, err := property(ctx, svc, &inhibitor.ID, "target", "EGFR")
	if err != nil {
		return sum, err
	}
	dmso, _, err := svc.CreateCompound(ctx, domain.Compound{Name: "DMSO", PropertyID: &solvent.ID})
	if err != nil {
		return sum, Error.Wrap(err)
	}
	gefitinib, _, err := svc.CreateCompound(ctx, domain.Compound{Name: "Gefitinib", PropertyID: &egfr.ID})
	if err != nil {
		return sum, Error.Wrap(err)
	}

	plate, _, err := svc.CreatePlate(ctx, domain.Plate{Name: PlateName, Comment: "generated demo data"})
	if err != nil {
		return sum, Error.Wrap(err)
	}
	sum.PlateID = plate.ID

	start := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		uri := fmt.Sprintf("%s://demo/%s/tp%d/", svc.Reader().Scheme(), PlateName, i+1)
		if err := writeImages(ctx, svc.Reader().Store(), uri); err != nil {
			return sum, err
		}
		_, n, _, err := svc.CreateTimePoint(ctx, plate.ID, uri, start.Add(time.Duration(i)*24*time.Hour))
		if err != nil {
			return sum, Error.Wrap(err)
		}
		sum.TimePoints++
		sum.Items += n
	}

	for _, sec := range []domain.Section{
		{RowStart: "A", RowEnd: "B", ColStart: 1, ColEnd: cols, CellID: hela.ID, CompoundID: dmso.ID, CompoundConcentration: 0.1},
		{RowStart: "C", RowEnd: "D", ColStart: 1, ColEnd: 3, CellID: u2os.ID, CompoundID: gefitinib.ID, CompoundConcentration: 1},
		{RowStart: "C", RowEnd: "D", ColStart: 4, ColEnd: cols, CellID: u2os.ID, CompoundID: gefitinib.ID, CompoundConcentration: 10},
	} {
		sec.PlateID = plate.ID
		sec.StackID = stack.ID
		if _, _, err := svc.CreateSection(ctx, sec); err != nil {
			return sum, Error.Wrap(err)
		}
		sum.Sections++
	}

	if _, _, err := svc.CreateTag(ctx, domain.Tag{Name: "control", Comment: "solvent-only wells"}); err != nil {
		return sum, Error.Wrap(err)
	}
	sum.Tagged, _, err = svc.TagItems(ctx, "control", []query.Filter{{Key: "compound_name", Value: "DMSO"}})
	if err != nil {
		return sum, Error.Wrap(err)
	}

	log.Info("demo data seeded",
		zap.String("plate", plate.ID),
		zap.Int("timepoints", sum.TimePoints),
		zap.Int("items", sum.Items),
		zap.Int("sections", sum.Sections),
		zap.Int("tagged", sum.Tagged))
	return sum, nil
}

func property(ctx context.Context, svc *core.Service, parentID *string, typ, value string) (domain.CompoundProperty, error) {
	p, _, err := svc.CreateCompoundProperty(ctx, domain.CompoundProperty{ParentID: parentID, Type: typ, Value: value})
	return p, Error.Wrap(err)
}

// writeImages stores one placeholder image per well, site and channel
// unless the prefix already holds objects.
func writeImages(ctx context.Context, store blobcore.Store, uri string) error {
	prefix, err := blobcore.KeyFromURI(uri)
	if err != nil {
		return Error.Wrap(err)
	}
	existing, err := store.List(ctx, prefix)
	if err != nil {
		return Error.Wrap(err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, r := range rows {
		for c := 1; c <= cols; c++ {
			for s := 1; s <= sites; s++ {
				for ch := 1; ch <= channels; ch++ {
					name := fmt.Sprintf("%c%02d_s%d_w%d.tif", r, c, s, ch)
					_, err := store.Put(ctx, prefix+name, strings.NewReader(name), blobcore.PutOptions{
						ContentType: "image/tiff",
						Metadata:    map[string]string{"source": "demo"},
					})
					if err != nil {
						return Error.Wrap(err)
					}
				}
			}
		}
	}
	return nil
}

// ImageCount is the number of images Seed writes per time point.
func ImageCount() int { return len(rows) * cols * sites * channels }
