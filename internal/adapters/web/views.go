package web

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"labcatalog/internal/core"
	"labcatalog/internal/nestedset"
	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

type link struct {
	Href  string
	Label string
}

type cell struct {
	Text string
	Href string
}

type field struct {
	Text  string
	Value string
	Href  string
}

type table struct {
	Title   string
	Columns []string
	Rows    [][]cell
}

// view is the data every template receives.
type view struct {
	Title   string
	Nav     []link
	Links   []link
	Fields  []field
	Tables  []table
	Body    template.HTML
	Message string
}

var navigation = []link{
	{Href: Prefix + "/plates", Label: "Plates"},
	{Href: Prefix + "/sections", Label: "Sections"},
	{Href: Prefix + "/stacks", Label: "Stacks"},
	{Href: Prefix + "/modalities", Label: "Modalities"},
	{Href: Prefix + "/cells", Label: "Cells"},
	{Href: Prefix + "/compounds", Label: "Compounds"},
	{Href: Prefix + "/tags", Label: "Tags"},
}

func href(collection, id string) string { return Prefix + "/" + collection + "/" + id }

func named(collection, id, name string) cell {
	if id == "" {
		return cell{}
	}
	if name == "" {
		name = id
	}
	return cell{Text: name, Href: href(collection, id)}
}

func text(s string) cell { return cell{Text: s} }

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// listPage renders one table whose first column links to detail pages.
func listPage[T any](h *Handler, w http.ResponseWriter, r *http.Request, title string, list func(context.Context) ([]T, error), columns []string, row func(T) []cell) {
	records, err := list(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t := table{Columns: columns}
	for _, rec := range records {
		t.Rows = append(t.Rows, row(rec))
	}
	h.render(w, r, http.StatusOK, "list", view{Title: title, Tables: []table{t}})
}

func (h *Handler) plates(w http.ResponseWriter, r *http.Request) {
	listPage(h, w, r, "Plates", h.svc.ListPlates, []string{"Name", "Comment"}, func(p domain.Plate) []cell {
		return []cell{named("plates", p.ID, p.Name), text(p.Comment)}
	})
}

func (h *Handler) stacks(w http.ResponseWriter, r *http.Request) {
	listPage(h, w, r, "Stacks", h.svc.ListStacks, []string{"Name", "Channels", "Comment"}, func(s domain.Stack) []cell {
		return []cell{named("stacks", s.ID, s.Name), text(strconv.Itoa(len(s.Channels))), text(s.Comment)}
	})
}

func (h *Handler) modalities(w http.ResponseWriter, r *http.Request) {
	listPage(h, w, r, "Modalities", h.svc.ListModalities, []string{"Name", "Target", "Comment"}, func(m domain.Modality) []cell {
		return []cell{named("modalities", m.ID, m.Name), text(m.Target), text(m.Comment)}
	})
}

func (h *Handler) cells(w http.ResponseWriter, r *http.Request) {
	listPage(h, w, r, "Cells", h.svc.ListCells, []string{"Name", "Code", "Comment"}, func(c domain.Cell) []cell {
		return []cell{named("cells", c.ID, c.Name), text(c.Code), text(c.Comment)}
	})
}

func (h *Handler) compounds(w http.ResponseWriter, r *http.Request) {
	listPage(h, w, r, "Compounds", h.svc.ListCompounds, []string{"Name", "Comment"}, func(c domain.Compound) []cell {
		return []cell{named("compounds", c.ID, c.Name), text(c.Comment)}
	})
}

func (h *Handler) tags(w http.ResponseWriter, r *http.Request) {
	listPage(h, w, r, "Tags", h.svc.ListTags, []string{"Name", "Comment"}, func(t domain.Tag) []cell {
		return []cell{named("tags", t.ID, t.Name), text(t.Comment)}
	})
}

// names resolves the display names sections link to.
type names struct {
	plates, cells, compounds, stacks map[string]string
}

func (h *Handler) loadNames(ctx context.Context) (names, error) {
	n := names{plates: map[string]string{}, cells: map[string]string{}, compounds: map[string]string{}, stacks: map[string]string{}}
	plates, err := h.svc.ListPlates(ctx)
	if err != nil {
		return n, err
	}
	for _, p := range plates {
		n.plates[p.ID] = p.Name
	}
	cells, err := h.svc.ListCells(ctx)
	if err != nil {
		return n, err
	}
	for _, c := range cells {
		n.cells[c.ID] = c.Name
	}
	compounds, err := h.svc.ListCompounds(ctx)
	if err != nil {
		return n, err
	}
	for _, c := range compounds {
		n.compounds[c.ID] = c.Name
	}
	stacks, err := h.svc.ListStacks(ctx)
	if err != nil {
		return n, err
	}
	for _, s := range stacks {
		n.stacks[s.ID] = s.Name
	}
	return n, nil
}

func sectionRange(s domain.Section) string {
	return fmt.Sprintf("%s%d:%s%d", s.RowStart, s.ColStart, s.RowEnd, s.ColEnd)
}

// sortSections orders sections by range: rows first, then columns.
func sortSections(secs []domain.Section) {
	sort.SliceStable(secs, func(i, j int) bool {
		a, b := secs[i], secs[j]
		if a.RowStart != b.RowStart {
			return a.RowStart < b.RowStart
		}
		if a.RowEnd != b.RowEnd {
			return a.RowEnd < b.RowEnd
		}
		if a.ColStart != b.ColStart {
			return a.ColStart < b.ColStart
		}
		return a.ColEnd < b.ColEnd
	})
}

func sectionTable(title string, secs []domain.Section, n names, withPlate bool) table {
	t := table{Title: title, Columns: []string{"Section", "Range", "Compound", "Concentration", "Stack", "Cell"}}
	if withPlate {
		t.Columns = append([]string{"Plate"}, t.Columns...)
	}
	for _, s := range secs {
		row := []cell{
			named("sections", s.ID, s.ID),
			text(sectionRange(s)),
			named("compounds", s.CompoundID, n.compounds[s.CompoundID]),
			text(strconv.FormatFloat(s.CompoundConcentration, 'g', -1, 64)),
			named("stacks", s.StackID, n.stacks[s.StackID]),
			named("cells", s.CellID, n.cells[s.CellID]),
		}
		if withPlate {
			row = append([]cell{named("plates", s.PlateID, n.plates[s.PlateID])}, row...)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// sectionsWhere lists every section matching keep, sorted by plate and range.
func (h *Handler) sectionsWhere(ctx context.Context, keep func(domain.Section) bool) ([]domain.Section, error) {
	all, err := h.svc.ListSections(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []domain.Section
	for _, s := range all {
		if keep(s) {
			out = append(out, s)
		}
	}
	sortSections(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlateID < out[j].PlateID })
	return out, nil
}

func (h *Handler) sections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.loadNames(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	secs, err := h.sectionsWhere(ctx, func(domain.Section) bool { return true })
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "list", view{Title: "Sections", Tables: []table{sectionTable("", secs, n, true)}})
}

func (h *Handler) plate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.svc.GetPlate(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.loadNames(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	secs, err := h.svc.ListSections(ctx, p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sortSections(secs)
	tps, err := h.svc.ListTimePoints(ctx, p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tpTable := table{Title: "Time points", Columns: []string{"Time", "URI"}}
	for _, tp := range tps {
		tpTable.Rows = append(tpTable.Rows, []cell{text(stamp(tp.Time)), text(tp.URI)})
	}
	h.render(w, r, http.StatusOK, "detail", view{
		Title: "Plate " + p.Name,
		Fields: []field{
			{Text: "Name", Value: p.Name},
			{Text: "Comment", Value: p.Comment},
			{Text: "Created", Value: stamp(p.CreatedAt)},
		},
		Tables: []table{sectionTable("Sections", secs, n, false), tpTable},
	})
}

func (h *Handler) section(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.svc.GetSection(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.loadNames(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "detail", view{
		Title: "Section " + sectionRange(s),
		Fields: []field{
			{Text: "Plate", Value: n.plates[s.PlateID], Href: href("plates", s.PlateID)},
			{Text: "Range", Value: sectionRange(s)},
			{Text: "Cell", Value: n.cells[s.CellID], Href: href("cells", s.CellID)},
			{Text: "Compound", Value: n.compounds[s.CompoundID], Href: href("compounds", s.CompoundID)},
			{Text: "Concentration", Value: strconv.FormatFloat(s.CompoundConcentration, 'g', -1, 64)},
			{Text: "Stack", Value: n.stacks[s.StackID], Href: href("stacks", s.StackID)},
		},
	})
}

func (h *Handler) stack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.svc.GetStack(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	mods, err := h.svc.ListModalities(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	modNames := make(map[string]string, len(mods))
	for _, m := range mods {
		modNames[m.ID] = m.Name
	}
	channels := append([]domain.StackChannel(nil), st.Channels...)
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Chan < channels[j].Chan })
	t := table{Title: "Modalities", Columns: []string{"Channel", "Modality", "Filename pattern"}}
	for _, ch := range channels {
		t.Rows = append(t.Rows, []cell{
			text(strconv.Itoa(ch.Chan)),
			named("modalities", ch.ModalityID, modNames[ch.ModalityID]),
			text(ch.Regexp),
		})
	}
	h.render(w, r, http.StatusOK, "detail", view{
		Title:  "Stack " + st.Name,
		Fields: []field{{Text: "Name", Value: st.Name}, {Text: "Comment", Value: st.Comment}},
		Tables: []table{t},
	})
}

func (h *Handler) modality(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.svc.GetModality(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stacks, err := h.svc.ListStacks(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t := table{Title: "Stacks", Columns: []string{"Stack", "Channel"}}
	for _, st := range stacks {
		for _, ch := range st.Channels {
			if ch.ModalityID == m.ID {
				t.Rows = append(t.Rows, []cell{named("stacks", st.ID, st.Name), text(strconv.Itoa(ch.Chan))})
			}
		}
	}
	h.render(w, r, http.StatusOK, "detail", view{
		Title: "Modality " + m.Name,
		Fields: []field{
			{Text: "Name", Value: m.Name},
			{Text: "Target", Value: m.Target},
			{Text: "Comment", Value: m.Comment},
		},
		Tables: []table{t},
	})
}

func (h *Handler) cell(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.svc.GetCell(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.loadNames(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	secs, err := h.sectionsWhere(ctx, func(s domain.Section) bool { return s.CellID == c.ID })
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "detail", view{
		Title: "Cell " + c.Name,
		Fields: []field{
			{Text: "Name", Value: c.Name},
			{Text: "Code", Value: c.Code},
			{Text: "Comment", Value: c.Comment},
		},
		Tables: []table{sectionTable("Sections", secs, n, true)},
	})
}

func (h *Handler) compound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.svc.GetCompound(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lineage, err := h.propertyLineage(ctx, c.PropertyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.loadNames(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	secs, err := h.sectionsWhere(ctx, func(s domain.Section) bool { return s.CompoundID == c.ID })
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "detail", view{
		Title:  "Compound " + c.Name,
		Fields: []field{{Text: "Name", Value: c.Name}, {Text: "Comment", Value: c.Comment}},
		Tables: []table{lineage, sectionTable("Sections", secs, n, true)},
	})
}

// propertyLineage lists a property and its ancestors, root first.
func (h *Handler) propertyLineage(ctx context.Context, propertyID *string) (table, error) {
	t := table{Title: "Properties", Columns: []string{"Depth", "Type", "Value"}}
	if propertyID == nil {
		return t, nil
	}
	props, err := h.svc.ListCompoundProperties(ctx)
	if err != nil {
		return t, err
	}
	bounds := make([]nestedset.Bounds, len(props))
	var target nestedset.Bounds
	for i, p := range props {
		bounds[i] = nestedset.Bounds{Left: p.Left, Right: p.Right}
		if p.ID == *propertyID {
			target = bounds[i]
		}
	}
	for _, i := range nestedset.Ancestors(bounds, target) {
		p := props[i]
		t.Rows = append(t.Rows, []cell{text(strconv.Itoa(p.Depth)), text(p.Type), text(p.Value)})
	}
	return t, nil
}

func (h *Handler) tag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := h.svc.GetTag(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.ListItems(ctx, core.ItemQuery{Filters: tagFilter(t.Name), Page: 1, PageSize: itemsShown})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := table{Title: "Items", Columns: []string{"Image", "Well", "Site", "Channel"}}
	seen := map[string]bool{}
	for _, rec := range page.Records {
		id := str(rec, "id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		items.Rows = append(items.Rows, []cell{
			{Text: str(rec, "uri"), Href: href("items", id) + "/image"},
			text(fmt.Sprintf("%s%v", str(rec, "row"), rec["col"])),
			text(fmt.Sprint(rec["site"])),
			text(fmt.Sprint(rec["chan"])),
		})
	}
	h.render(w, r, http.StatusOK, "detail", view{
		Title:  "Tag " + t.Name,
		Fields: []field{{Text: "Name", Value: t.Name}, {Text: "Comment", Value: t.Comment}},
		Tables: []table{items},
	})
}

// itemsShown caps the items listed on a tag page.
const itemsShown = 200

func tagFilter(name string) []query.Filter {
	return []query.Filter{{Key: query.TagsKey, Value: name}}
}

func str(rec query.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}
