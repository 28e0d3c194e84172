// Config loading has no corpus-library analogue for XML: the example pack
// ships libraries for TOML, JSON-ish wire formats, and binary codecs, but
// none for XML, and the aggregation rules format is XML (per
// original_source's configurations_loader.cpp use of boost property_tree).
// encoding/xml is the stdlib fallback here, noted in DESIGN.md.
package aggregator

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	integerPattern  = regexp.MustCompile(`^[0-9]+$`)
	durationPattern = regexp.MustCompile(`(?i)^([0-9]+[hms])+$`)
	durationToken   = regexp.MustCompile(`(?i)([0-9]+)([hms])`)
)

// xmlConfig mirrors the "maths" XML document: a sequence of category
// elements, each with a name attribute and an arbitrary set of computation
// child elements (sum/average/min/max/median/tiles/variance/deviation).
type xmlConfig struct {
	XMLName    xml.Name       `xml:"maths"`
	Categories []xmlCategory  `xml:"category"`
}

type xmlCategory struct {
	Name          string         `xml:"name,attr"`
	Below         string         `xml:"below,attr"`
	Multiplicator string         `xml:"multiplicator,attr"`
	Nodes         []xmlComputation
}

// xmlComputation captures one computation child element generically: its
// tag name (the computation kind), its text content (count or duration),
// an optional "value" attribute (required by tiles), and the optional tiles
// "below"/"multiplicator" attributes, which take precedence over the same
// attributes on the enclosing category.
type xmlComputation struct {
	XMLName       xml.Name
	Value         string `xml:"value,attr"`
	Below         string `xml:"below,attr"`
	Multiplicator string `xml:"multiplicator,attr"`
	Text          string `xml:",chardata"`
}

// UnmarshalXML collects every child element of <category>, regardless of
// tag name, into Nodes -- category children are heterogeneous
// (sum/average/.../tiles), which xml.Unmarshal can't express as a typed
// struct field directly.
func (c *xmlCategory) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "name":
			c.Name = attr.Value
		case "below":
			c.Below = attr.Value
		case "multiplicator":
			c.Multiplicator = attr.Value
		}
	}

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var node xmlComputation
			if err := d.DecodeElement(&node, &t); err != nil {
				return err
			}
			c.Nodes = append(c.Nodes, node)
		case xml.EndElement:
			if t.Name.Local == "category" {
				return nil
			}
		}
	}
	return nil
}

// parseDurationSeconds parses an h/m/s duration string such as "3h27m21s"
// or "21S3H27M" into total seconds, order- and case-independent. Grounded
// on original_source/.../utils/time.cpp's parseTime.
func parseDurationSeconds(s string) uint64 {
	var total uint64
	for _, m := range durationToken.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		}
	}
	return total
}

// LoadCategories parses an aggregation-rules XML document into an ordered
// list of Categories, applying the load rules from SPEC_FULL.md §4.4:
// name-less and empty categories are skipped, computation values must
// match either the integer or duration grammar, ON_COUNT thresholds must
// exceed 1, ON_TIME thresholds must be positive, and TILES without a
// "value" attribute is logged and dropped (but does not disqualify the
// rest of the category). initLastFired seeds every ON_TIME computation's
// last-fired boundary (normally the current wall-clock second).
func LoadCategories(r io.Reader, initLastFired uint64) ([]*Category, error) {
	var doc xmlConfig
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("aggregator: parse aggregation config: %w", err)
	}

	var categories []*Category
	for _, xc := range doc.Categories {
		if xc.Name == "" {
			log.Warn("aggregator: category without a name, ignored")
			continue
		}
		if len(xc.Nodes) == 0 {
			log.WithField("category", xc.Name).Warn("aggregator: empty category, ignored")
			continue
		}

		cat, err := NewCategory(xc.Name)
		if err != nil {
			log.WithField("category", xc.Name).WithError(err).Warn("aggregator: invalid category regex, ignored")
			continue
		}

		for _, node := range xc.Nodes {
			kind, ok := ParseKind(node.XMLName.Local)
			if !ok {
				continue
			}

			text := strings.TrimSpace(node.Text)
			var threshold uint64
			var onTime bool
			switch {
			case integerPattern.MatchString(text):
				n, err := strconv.ParseUint(text, 10, 64)
				if err != nil {
					continue
				}
				threshold = n
				onTime = false
			case durationPattern.MatchString(text):
				threshold = parseDurationSeconds(text)
				onTime = true
			default:
				continue
			}

			if onTime && threshold < 1 {
				continue
			}
			if !onTime && threshold <= 1 {
				continue
			}

			comp := NewComputation(kind, onTime, threshold, initLastFired)

			if kind == Tiles {
				if node.Value == "" {
					log.WithField("category", xc.Name).Error("aggregator: tiles computation needs a 'value' attribute")
					continue
				}
				comp.SetOption("value", node.Value)
				below := node.Below
				if below == "" {
					below = xc.Below
				}
				if below == "" {
					below = "true"
				}
				comp.SetOption("below", below)
				multiplicator := node.Multiplicator
				if multiplicator == "" {
					multiplicator = xc.Multiplicator
				}
				if multiplicator == "" {
					multiplicator = "100"
				}
				comp.SetOption("multiplicator", multiplicator)
			}

			cat.AddComputation(comp)
		}

		if cat.Empty() {
			log.WithField("category", xc.Name).Debug("aggregator: category has no valid computations, ignored")
			continue
		}

		categories = append(categories, cat)
	}

	if len(categories) == 0 {
		return nil, fmt.Errorf("aggregator: no valid categories loaded")
	}

	return categories, nil
}
