// Package annotation defines the column annotation records and the
// append-only schema they are collected in.
package annotation

// ColumnType is the top-level role assigned to a column.
type ColumnType string

const (
	ColumnGeo     ColumnType = "GEO"
	ColumnDate    ColumnType = "DATE"
	ColumnFeature ColumnType = "FEATURE"
)

// ColumnTypes lists the roles in prompt order.
var ColumnTypes = []ColumnType{ColumnGeo, ColumnDate, ColumnFeature}

// GeoType is the subtype of a GEO column.
type GeoType string

const (
	GeoLatitude    GeoType = "LATITUDE"
	GeoLongitude   GeoType = "LONGITUDE"
	GeoCoordinates GeoType = "COORDINATES"
	GeoCity        GeoType = "CITY"
	GeoState       GeoType = "STATE"
	GeoCountry     GeoType = "COUNTRY"
	GeoCounty      GeoType = "COUNTY"
	GeoISO2        GeoType = "ISO2"
	GeoISO3        GeoType = "ISO3"
)

// GeoTypes lists the geo subtypes in prompt order.
var GeoTypes = []GeoType{
	GeoLatitude, GeoLongitude, GeoCoordinates,
	GeoCity, GeoState, GeoCountry, GeoCounty, GeoISO2, GeoISO3,
}

// Complement returns the opposite axis for LATITUDE and LONGITUDE.
// The second result is false for every other subtype.
func (g GeoType) Complement() (GeoType, bool) {
	switch g {
	case GeoLatitude:
		return GeoLongitude, true
	case GeoLongitude:
		return GeoLatitude, true
	}
	return "", false
}

// DateType is the subtype of a DATE column.
type DateType string

const (
	DateYear  DateType = "YEAR"
	DateMonth DateType = "MONTH"
	DateDay   DateType = "DAY"
	DateDate  DateType = "DATE"
)

// DateTypes lists the date subtypes in prompt order.
var DateTypes = []DateType{DateYear, DateMonth, DateDay, DateDate}

// IsComponent reports whether the subtype is a single calendar field that
// can be grouped with its siblings.
func (d DateType) IsComponent() bool {
	return d == DateYear || d == DateMonth || d == DateDay
}

// TimeField returns the calendar field a component subtype stands for.
func (d DateType) TimeField() (TimeField, bool) {
	switch d {
	case DateYear:
		return FieldYear, true
	case DateMonth:
		return FieldMonth, true
	case DateDay:
		return FieldDay, true
	}
	return "", false
}

// FeatureType is the subtype of a FEATURE column.
type FeatureType string

const (
	FeatureFloat   FeatureType = "FLOAT"
	FeatureInt     FeatureType = "INT"
	FeatureStr     FeatureType = "STR"
	FeatureBoolean FeatureType = "BOOLEAN"
	FeatureBinary  FeatureType = "BINARY"
)

// FeatureTypes lists the feature subtypes in prompt order.
var FeatureTypes = []FeatureType{FeatureFloat, FeatureInt, FeatureStr, FeatureBoolean, FeatureBinary}

// CoordFormat is the axis order inside a combined coordinate column.
type CoordFormat string

const (
	CoordLatLon CoordFormat = "LATLON"
	CoordLonLat CoordFormat = "LONLAT"
)

// TimeField keys the associated columns of a date group host.
type TimeField string

const (
	FieldYear  TimeField = "YEAR"
	FieldMonth TimeField = "MONTH"
	FieldDay   TimeField = "DAY"
)

// GadmLevel is the administrative level a geo column resolves to.
type GadmLevel string

const (
	GadmCountry GadmLevel = "COUNTRY"
	GadmAdmin1  GadmLevel = "ADMIN1"
	GadmAdmin2  GadmLevel = "ADMIN2"
	GadmAdmin3  GadmLevel = "ADMIN3"
)

// Placeholders written into fields that a later stage is expected to fill.
const (
	TimeFormatPending  = "todo"
	DescriptionPending = "todo feature description"
)

// Options renders a list of enum values as the string labels offered to
// the classifier.
func Options[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// GeoAnnotation describes a GEO column.
type GeoAnnotation struct {
	Name          string       `json:"name"`
	DisplayName   string       `json:"display_name,omitempty"`
	Description   string       `json:"description,omitempty"`
	GeoType       GeoType      `json:"geo_type"`
	PrimaryGeo    *bool        `json:"primary_geo,omitempty"`
	ResolveToGadm *bool        `json:"resolve_to_gadm,omitempty"`
	IsGeoPair     *string      `json:"is_geo_pair,omitempty"`
	CoordFormat   *CoordFormat `json:"coord_format,omitempty"`
	Qualifies     []string     `json:"qualifies,omitempty"`
	GadmLevel     *GadmLevel   `json:"gadm_level,omitempty"`
}

// WithPrimary returns a copy with primary_geo set.
func (g GeoAnnotation) WithPrimary(primary bool) GeoAnnotation {
	g.PrimaryGeo = &primary
	return g
}

// WithPair returns a copy linked to the named opposite-axis column.
func (g GeoAnnotation) WithPair(name string) GeoAnnotation {
	g.IsGeoPair = &name
	return g
}

// WithCoordFormat returns a copy with coord_format set.
func (g GeoAnnotation) WithCoordFormat(f CoordFormat) GeoAnnotation {
	g.CoordFormat = &f
	return g
}

// DateAnnotation describes a DATE column.
type DateAnnotation struct {
	Name              string               `json:"name"`
	DisplayName       string               `json:"display_name,omitempty"`
	Description       string               `json:"description,omitempty"`
	DateType          DateType             `json:"date_type"`
	PrimaryDate       *bool                `json:"primary_date,omitempty"`
	TimeFormat        string               `json:"time_format"`
	AssociatedColumns map[TimeField]string `json:"associated_columns,omitempty"`
	Qualifies         []string             `json:"qualifies,omitempty"`
}

// WithPrimary returns a copy with primary_date set.
func (d DateAnnotation) WithPrimary(primary bool) DateAnnotation {
	d.PrimaryDate = &primary
	return d
}

// WithTimeFormat returns a copy with time_format replaced.
func (d DateAnnotation) WithTimeFormat(format string) DateAnnotation {
	d.TimeFormat = format
	return d
}

// WithAssociated returns a copy carrying its own copy of the given map.
func (d DateAnnotation) WithAssociated(cols map[TimeField]string) DateAnnotation {
	m := make(map[TimeField]string, len(cols))
	for k, v := range cols {
		m[k] = v
	}
	d.AssociatedColumns = m
	return d
}

// FeatureAnnotation describes a FEATURE column.
type FeatureAnnotation struct {
	Name             string      `json:"name"`
	DisplayName      string      `json:"display_name,omitempty"`
	Description      string      `json:"description"`
	FeatureType      FeatureType `json:"feature_type"`
	Units            string      `json:"units,omitempty"`
	UnitsDescription string      `json:"units_description,omitempty"`
	Qualifies        []string    `json:"qualifies,omitempty"`
	QualifierRole    string      `json:"qualifier_role,omitempty"`
}

// NewGeo returns a fresh geo annotation with every optional field unset.
func NewGeo(name string, t GeoType) GeoAnnotation {
	return GeoAnnotation{Name: name, GeoType: t}
}

// NewDate returns a fresh date annotation awaiting format inference.
func NewDate(name string, t DateType) DateAnnotation {
	return DateAnnotation{Name: name, DateType: t, TimeFormat: TimeFormatPending}
}

// NewFeature returns a fresh feature annotation.
func NewFeature(name string, t FeatureType) FeatureAnnotation {
	return FeatureAnnotation{Name: name, FeatureType: t, Description: DescriptionPending}
}
