package flow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Spok95/olimpia-bot/internal/dialog"
	"github.com/Spok95/olimpia-bot/internal/domain/catalog"
)

// CatalogSource — шаг выбирает позицию из живого каталога склада,
// указанного в поле WarehouseField.
type CatalogSource struct {
	Kind           catalog.ItemKind
	WarehouseField string
}

type Step struct {
	Name     string
	Text     string
	Choices  []Choice
	Catalog  *CatalogSource
	Validate Validator
}

// Loop — повторяющийся блок позиций: шаги First..Last пишут в Draft,
// после Last позиция добавляется в Items и задаётся вопрос Ask.
type Loop struct {
	First, Last, Ask string
}

type Definition struct {
	Kind    dialog.Kind
	Title   string
	Command string
	Steps   []Step
	Loop    *Loop

	index map[string]int
}

func (d *Definition) build() *Definition {
	d.index = make(map[string]int, len(d.Steps))
	for i, st := range d.Steps {
		if _, dup := d.index[st.Name]; dup {
			panic(fmt.Sprintf("flow %s: duplicate step %q", d.Kind, st.Name))
		}
		d.index[st.Name] = i
	}
	if last := d.Steps[len(d.Steps)-1]; last.Name != dialog.FieldConfirm {
		panic(fmt.Sprintf("flow %s: last step must be %q", d.Kind, dialog.FieldConfirm))
	}
	if d.Loop != nil {
		f, okF := d.index[d.Loop.First]
		l, okL := d.index[d.Loop.Last]
		a, okA := d.index[d.Loop.Ask]
		if !okF || !okL || !okA || f > l || a != l+1 {
			panic(fmt.Sprintf("flow %s: bad loop %+v", d.Kind, *d.Loop))
		}
	}
	return d
}

// First — первый шаг сценария.
func (d *Definition) First() string { return d.Steps[0].Name }

func (d *Definition) Step(name string) (Step, bool) {
	i, ok := d.index[name]
	if !ok {
		return Step{}, false
	}
	return d.Steps[i], true
}

// inLoop — шаг пишет в текущую позицию, а не в общие поля.
func (d *Definition) inLoop(step string) bool {
	if d.Loop == nil {
		return false
	}
	i := d.index[step]
	return i >= d.index[d.Loop.First] && i <= d.index[d.Loop.Last]
}

// Edges — объявленные переходы из шага.
func (d *Definition) Edges(step string) []string {
	i, ok := d.index[step]
	if !ok || step == dialog.FieldConfirm {
		return nil
	}
	if d.Loop != nil && step == d.Loop.Ask {
		return []string{d.Loop.First, d.Steps[i+1].Name}
	}
	return []string{d.Steps[i+1].Name}
}

// Advance сохраняет значение текущего шага и переводит сессию дальше.
// Цикл позиций реализован только здесь.
func (d *Definition) Advance(s *dialog.Session, value string) error {
	step := s.Step
	i, ok := d.index[step]
	if !ok || step == dialog.FieldConfirm {
		return fmt.Errorf("flow %s: cannot advance from step %q", d.Kind, step)
	}
	st := d.Steps[i]

	if d.inLoop(step) {
		if s.Draft == nil {
			s.Draft = dialog.Item{}
		}
		s.Draft[step] = value
		if st.Catalog != nil {
			s.Draft[dialog.NameField(step)] = s.Offer[value]
		}
	} else {
		if s.Fields == nil {
			s.Fields = map[string]string{}
		}
		s.Fields[step] = value
		if st.Catalog != nil {
			s.Fields[dialog.NameField(step)] = s.Offer[value]
		}
	}
	if st.Catalog != nil {
		s.Offer = nil
	}

	switch {
	case d.Loop != nil && step == d.Loop.Last:
		s.Items = append(s.Items, s.Draft)
		s.Draft = nil
		s.Step = d.Loop.Ask
	case d.Loop != nil && step == d.Loop.Ask && value == "yes":
		s.Draft = dialog.Item{}
		s.Step = d.Loop.First
	default:
		s.Step = d.Steps[i+1].Name
	}
	return nil
}

// Registry — все сценарии и их триггеры.
type Registry struct {
	defs      []*Definition
	byKind    map[dialog.Kind]*Definition
	byTrigger map[string]*Definition
}

func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{byKind: map[dialog.Kind]*Definition{}, byTrigger: map[string]*Definition{}}
	for _, d := range defs {
		d.build()
		r.defs = append(r.defs, d)
		r.byKind[d.Kind] = d
		r.byTrigger[strings.ToLower(d.Title)] = d
		r.byTrigger[strings.ToLower(d.Command)] = d
	}
	return r
}

func (r *Registry) Get(kind dialog.Kind) (*Definition, bool) {
	d, ok := r.byKind[kind]
	return d, ok
}

// Match находит сценарий по пункту меню или команде (/order и /order@bot).
func (r *Registry) Match(text string) (*Definition, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return nil, false
	}
	if strings.HasPrefix(t, "/") {
		if at := strings.IndexByte(t, '@'); at > 0 {
			t = t[:at]
		}
	}
	d, ok := r.byTrigger[t]
	return d, ok
}

// Menu — пункты главного меню.
func (r *Registry) Menu() []string {
	out := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.Title)
	}
	return out
}

func (r *Registry) Definitions() []*Definition { return slices.Clone(r.defs) }

func warehouseChoices(ws catalog.Warehouses) []Choice {
	out := make([]Choice, 0, len(ws))
	for _, w := range ws {
		out = append(out, Choice{Label: w.Name, Value: w.ID})
	}
	return out
}

func yesNoStep(text string) Step {
	return Step{Name: dialog.FieldAddAnother, Text: text, Choices: yesNo, Validate: OneOf(yesNo)}
}

func confirmStep() Step {
	return Step{Name: dialog.FieldConfirm, Text: "Перевірте дані:", Choices: []Choice{
		{Label: LabelConfirm, Value: "confirm"},
		{Label: LabelCancel, Value: "cancel"},
	}}
}

func choiceStep(name, text string, choices []Choice) Step {
	return Step{Name: name, Text: text, Choices: choices, Validate: OneOf(choices)}
}

// Standard — шесть сценариев в порядке главного меню.
func Standard(ws catalog.Warehouses) *Registry {
	whs := warehouseChoices(ws)
	return NewRegistry(
		&Definition{
			Kind: dialog.KindMerchReport, Title: "Звіт мерчандайзера", Command: "/report",
			Steps: []Step{
				{Name: dialog.FieldShop, Text: "Введіть назву магазину:", Validate: FreeText()},
				choiceStep(dialog.FieldSubwarehouse, "Оберіть субсклад:", whs),
				{Name: dialog.FieldProductName, Text: "Введіть назву товару:", Validate: FreeText()},
				{Name: dialog.FieldQuantity, Text: "Кількість товару на полиці:", Validate: NonNegative()},
				{Name: dialog.FieldPrice, Text: "Ціна товару:", Validate: NonNegative()},
				{Name: dialog.FieldPromoQuantity, Text: "Кількість товару по акції:", Validate: NonNegative()},
				{Name: dialog.FieldPromoPrice, Text: "Акційна ціна:", Validate: NonNegative()},
				{Name: dialog.FieldPhoto, Text: "Надішліть фото полиці:", Choices: []Choice{{Label: LabelNoPhoto, Value: ""}}, Validate: Photo()},
				yesNoStep("Додати ще товар?"),
				confirmStep(),
			},
			Loop: &Loop{First: dialog.FieldProductName, Last: dialog.FieldPhoto, Ask: dialog.FieldAddAnother},
		},
		&Definition{
			Kind: dialog.KindOrder, Title: "Створити замовлення", Command: "/order",
			Steps: []Step{
				choiceStep(dialog.FieldWarehouse, "Оберіть склад:", whs),
				{Name: dialog.FieldProduct, Text: "Оберіть товар:", Validate: Selection(),
					Catalog: &CatalogSource{Kind: catalog.KindFinishedGood, WarehouseField: dialog.FieldWarehouse}},
				{Name: dialog.FieldQuantity, Text: "Введіть кількість:", Validate: Positive()},
				{Name: dialog.FieldPrice, Text: "Введіть ціну:", Validate: NonNegative()},
				yesNoStep("Додати ще товар?"),
				{Name: dialog.FieldComment, Text: "Коментар до замовлення:", Choices: []Choice{{Label: LabelNoComment, Value: ""}}, Validate: Comment()},
				confirmStep(),
			},
			Loop: &Loop{First: dialog.FieldProduct, Last: dialog.FieldPrice, Ask: dialog.FieldAddAnother},
		},
		&Definition{
			Kind: dialog.KindManufactured, Title: "Кількість виробленої продукції", Command: "/manufactured",
			Steps: []Step{
				choiceStep(dialog.FieldWarehouse, "Оберіть склад:", whs),
				{Name: dialog.FieldProduct, Text: "Оберіть продукцію:", Validate: Selection(),
					Catalog: &CatalogSource{Kind: catalog.KindFinishedGood, WarehouseField: dialog.FieldWarehouse}},
				{Name: dialog.FieldQuantity, Text: "Введіть кількість виробленої продукції:", Validate: Positive()},
				confirmStep(),
			},
		},
		&Definition{
			Kind: dialog.KindRawUsage, Title: "Кількість використаної сировини", Command: "/rawusage",
			Steps: []Step{
				choiceStep(dialog.FieldWarehouse, "Оберіть склад:", whs),
				{Name: dialog.FieldMaterial, Text: "Оберіть сировину:", Validate: Selection(),
					Catalog: &CatalogSource{Kind: catalog.KindRawMaterial, WarehouseField: dialog.FieldWarehouse}},
				{Name: dialog.FieldUsedQuantity, Text: "Кількість використаної сировини:", Validate: NonNegative()},
				{Name: dialog.FieldDefectQuantity, Text: "Кількість бракованої сировини:", Validate: NonNegative()},
				confirmStep(),
			},
		},
		&Definition{
			Kind: dialog.KindDefective, Title: "Бракована продукція", Command: "/defective",
			Steps: []Step{
				{Name: dialog.FieldProductName, Text: "Введіть назву продукції:", Validate: FreeText()},
				{Name: dialog.FieldReturnDate, Text: "Дата повернення (ДД.ММ.РРРР):", Validate: Date()},
				{Name: dialog.FieldQuantity, Text: "Кількість:", Validate: NonNegative()},
				{Name: dialog.FieldTotalPrice, Text: "Загальна сума:", Validate: NonNegative()},
				yesNoStep("Додати ще продукцію?"),
				choiceStep(dialog.FieldSubwarehouse, "Оберіть субсклад:", whs),
				confirmStep(),
			},
			Loop: &Loop{First: dialog.FieldProductName, Last: dialog.FieldTotalPrice, Ask: dialog.FieldAddAnother},
		},
		&Definition{
			Kind: dialog.KindPallet, Title: "Піддони", Command: "/pallets",
			Steps: []Step{
				{Name: dialog.FieldQuantity, Text: "Кількість піддонів:", Validate: Positive()},
				{Name: dialog.FieldTotalPrice, Text: "Загальна сума:", Validate: NonNegative()},
				yesNoStep("Додати ще піддони?"),
				choiceStep(dialog.FieldSubwarehouse, "Оберіть субсклад:", whs),
				confirmStep(),
			},
			Loop: &Loop{First: dialog.FieldQuantity, Last: dialog.FieldTotalPrice, Ask: dialog.FieldAddAnother},
		},
	)
}
