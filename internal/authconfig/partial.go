package authconfig

import (
	"encoding/json"
	"maps"

	"gopkg.in/yaml.v3"
)

// Partial is caller-supplied configuration. A nil field means "use the
// default".
type Partial struct {
	Title              *string `json:"title,omitempty" yaml:"title,omitempty"`
	BackgroundColor    *string `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	ButtonColor        *string `json:"buttonColor,omitempty" yaml:"buttonColor,omitempty"`
	ButtonTextColor    *string `json:"buttonTextColor,omitempty" yaml:"buttonTextColor,omitempty"`
	TextColor          *string `json:"textColor,omitempty" yaml:"textColor,omitempty"`
	ShowEmailField     *bool   `json:"showEmailField,omitempty" yaml:"showEmailField,omitempty"`
	ShowPasswordField  *bool   `json:"showPasswordField,omitempty" yaml:"showPasswordField,omitempty"`
	ShowUsernameField  *bool   `json:"showUsernameField,omitempty" yaml:"showUsernameField,omitempty"`
	ShowFirstNameField *bool   `json:"showFirstNameField,omitempty" yaml:"showFirstNameField,omitempty"`
	ShowLastNameField  *bool   `json:"showLastNameField,omitempty" yaml:"showLastNameField,omitempty"`
	SubmitButtonText   *string `json:"submitButtonText,omitempty" yaml:"submitButtonText,omitempty"`
	EmailLabel         *string `json:"emailLabel,omitempty" yaml:"emailLabel,omitempty"`
	PasswordLabel      *string `json:"passwordLabel,omitempty" yaml:"passwordLabel,omitempty"`
	UsernameLabel      *string `json:"usernameLabel,omitempty" yaml:"usernameLabel,omitempty"`
	FirstNameLabel     *string `json:"firstNameLabel,omitempty" yaml:"firstNameLabel,omitempty"`
	LastNameLabel      *string `json:"lastNameLabel,omitempty" yaml:"lastNameLabel,omitempty"`

	Extra map[string]any `json:"-" yaml:"-"`
}

var knownKeys = map[string]struct{}{
	"title": {}, "backgroundColor": {}, "buttonColor": {}, "buttonTextColor": {},
	"textColor": {}, "showEmailField": {}, "showPasswordField": {},
	"showUsernameField": {}, "showFirstNameField": {}, "showLastNameField": {},
	"submitButtonText": {}, "emailLabel": {}, "passwordLabel": {},
	"usernameLabel": {}, "firstNameLabel": {}, "lastNameLabel": {},
}

// String returns a pointer to s, for building a Partial.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building a Partial.
func Bool(b bool) *bool { return &b }

// Merge returns p with every field that is set in over replaced.
func (p Partial) Merge(over Partial) Partial {
	out := p
	mergeString(&out.Title, over.Title)
	mergeString(&out.BackgroundColor, over.BackgroundColor)
	mergeString(&out.ButtonColor, over.ButtonColor)
	mergeString(&out.ButtonTextColor, over.ButtonTextColor)
	mergeString(&out.TextColor, over.TextColor)
	mergeBool(&out.ShowEmailField, over.ShowEmailField)
	mergeBool(&out.ShowPasswordField, over.ShowPasswordField)
	mergeBool(&out.ShowUsernameField, over.ShowUsernameField)
	mergeBool(&out.ShowFirstNameField, over.ShowFirstNameField)
	mergeBool(&out.ShowLastNameField, over.ShowLastNameField)
	mergeString(&out.SubmitButtonText, over.SubmitButtonText)
	mergeString(&out.EmailLabel, over.EmailLabel)
	mergeString(&out.PasswordLabel, over.PasswordLabel)
	mergeString(&out.UsernameLabel, over.UsernameLabel)
	mergeString(&out.FirstNameLabel, over.FirstNameLabel)
	mergeString(&out.LastNameLabel, over.LastNameLabel)

	if len(p.Extra) > 0 || len(over.Extra) > 0 {
		out.Extra = make(map[string]any, len(p.Extra)+len(over.Extra))
		maps.Copy(out.Extra, p.Extra)
		maps.Copy(out.Extra, over.Extra)
	}
	return out
}

// MarshalJSON writes set fields and Extra as one flat object.
func (p Partial) MarshalJSON() ([]byte, error) {
	type known Partial
	raw, err := json.Marshal(known(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return raw, nil
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, ok := knownKeys[k]; !ok {
			flat[k] = v
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads known fields and collects everything else into Extra.
func (p *Partial) UnmarshalJSON(data []byte) error {
	type known Partial
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*p = Partial(k)
	p.Extra = extraKeys(all)
	return nil
}

// UnmarshalYAML reads known fields and collects everything else into Extra.
func (p *Partial) UnmarshalYAML(value *yaml.Node) error {
	type known Partial
	var k known
	if err := value.Decode(&k); err != nil {
		return err
	}
	var all map[string]any
	if err := value.Decode(&all); err != nil {
		return err
	}
	*p = Partial(k)
	p.Extra = extraKeys(all)
	return nil
}

func extraKeys(all map[string]any) map[string]any {
	var extra map[string]any
	for key, v := range all {
		if _, ok := knownKeys[key]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = v
	}
	return extra
}

func mergeString(dst **string, v *string) {
	if v != nil {
		*dst = v
	}
}

func mergeBool(dst **bool, v *bool) {
	if v != nil {
		*dst = v
	}
}
