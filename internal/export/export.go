// Package export writes missing parts in the formats marketplaces import.
package export

import (
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brickparty/brick-party/internal/core/domain"
)

type Target string

const (
	TargetBrickLink   Target = "bricklink"
	TargetRebrickable Target = "rebrickable"
	TargetPickABrick  Target = "pickabrick"
)

var ErrUnknownExportTarget = errors.New("unknown export target")

func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(s)); t {
	case TargetBrickLink, TargetRebrickable, TargetPickABrick:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExportTarget, s)
}

// IncludesMinifigs reports whether the target can list whole minifigs.
func (t Target) IncludesMinifigs() bool {
	return t == TargetBrickLink
}

func (t Target) ContentType() string {
	if t == TargetBrickLink {
		return "application/xml"
	}
	return "text/csv"
}

func (t Target) FileName(setNumber string) string {
	ext := "csv"
	if t == TargetBrickLink {
		ext = "xml"
	}
	return fmt.Sprintf("%s-missing-%s.%s", setNumber, t, ext)
}

// Write renders parts for target and returns how many rows the format
// could not carry.
func Write(w io.Writer, target Target, parts []domain.MissingPart) (int, error) {
	switch target {
	case TargetBrickLink:
		return 0, WriteBrickLinkXML(w, parts)
	case TargetRebrickable:
		return WriteRebrickableCSV(w, parts)
	case TargetPickABrick:
		return WritePickABrickCSV(w, parts)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownExportTarget, target)
}

type wantedList struct {
	XMLName xml.Name     `xml:"INVENTORY"`
	Items   []wantedItem `xml:"ITEM"`
}

type wantedItem struct {
	ItemType string `xml:"ITEMTYPE"`
	ItemID   string `xml:"ITEMID"`
	Color    string `xml:"COLOR,omitempty"`
	MinQty   int    `xml:"MINQTY"`
}

// WriteBrickLinkXML writes a wanted list upload. Minifigs are listed as
// whole items of type M.
func WriteBrickLinkXML(w io.Writer, parts []domain.MissingPart) error {
	list := wantedList{Items: make([]wantedItem, 0, len(parts))}
	for _, p := range parts {
		item := wantedItem{ItemType: "P", ItemID: p.PartID, MinQty: p.QuantityMissing}
		if p.Minifig {
			item.ItemType = "M"
		} else {
			item.Color = strconv.Itoa(p.ColorID)
		}
		list.Items = append(list.Items, item)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(list); err != nil {
		return fmt.Errorf("encode wanted list: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteRebrickableCSV writes a part list import. Minifigs are skipped.
func WriteRebrickableCSV(w io.Writer, parts []domain.MissingPart) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Part", "Color", "Quantity"}); err != nil {
		return 0, err
	}

	skipped := 0
	for _, p := range parts {
		if p.Minifig {
			skipped++
			continue
		}
		if err := cw.Write([]string{p.PartID, strconv.Itoa(p.ColorID), strconv.Itoa(p.QuantityMissing)}); err != nil {
			return skipped, err
		}
	}
	cw.Flush()
	return skipped, cw.Error()
}

// WritePickABrickCSV writes a bulk order by element id. Parts without one
// and minifigs are skipped.
func WritePickABrickCSV(w io.Writer, parts []domain.MissingPart) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"elementId", "quantity"}); err != nil {
		return 0, err
	}

	skipped := 0
	for _, p := range parts {
		if p.Minifig || p.ElementID == "" {
			skipped++
			continue
		}
		if err := cw.Write([]string{p.ElementID, strconv.Itoa(p.QuantityMissing)}); err != nil {
			return skipped, err
		}
	}
	cw.Flush()
	return skipped, cw.Error()
}
