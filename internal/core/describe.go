package core

// EntityInfo is the public description of a registered entity.
type EntityInfo struct {
	Key             string      `json:"key"`
	Label           string      `json:"label"`
	Table           string      `json:"table"`
	NaturalKey      string      `json:"naturalKey"`
	PeriodField     string      `json:"periodField,omitempty"`
	CreateIfMissing bool        `json:"createIfMissing"`
	OnExisting      string      `json:"onExisting"`
	Audited         bool        `json:"audited"`
	Fields          []FieldInfo `json:"fields"`
}

// FieldInfo describes one accepted source column.
type FieldInfo struct {
	Name     string   `json:"name"`
	Column   string   `json:"column"`
	Aliases  []string `json:"aliases,omitempty"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Policy   string   `json:"policy"`
	List     string   `json:"list,omitempty"`
}

// Describe summarizes a schema for listings.
func Describe(s EntitySchema) EntityInfo {
	info := EntityInfo{
		Key:             s.Key,
		Label:           s.Label,
		Table:           s.Table,
		NaturalKey:      s.NaturalKey,
		PeriodField:     s.PeriodField,
		CreateIfMissing: s.CreateIfMissing,
		OnExisting:      s.OnExisting.String(),
		Audited:         s.Audit != nil,
		Fields:          make([]FieldInfo, 0, len(s.Fields)),
	}
	for _, f := range s.Fields {
		policy := f.Policy
		if l, ok := s.List(f.List); ok {
			policy = l.Policy
		}
		info.Fields = append(info.Fields, FieldInfo{
			Name:     f.Name,
			Column:   f.Column,
			Aliases:  f.Aliases,
			Type:     f.Type.String(),
			Required: f.RequiredColumn,
			Policy:   policy.String(),
			List:     f.List,
		})
	}
	return info
}

// DescribeAll describes every registered entity, sorted by key.
func DescribeAll() []EntityInfo {
	all := All()
	out := make([]EntityInfo, len(all))
	for i, s := range all {
		out[i] = Describe(s)
	}
	return out
}
