package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"clienttabs/internal/apperr"
	"clienttabs/internal/naming"
	"clienttabs/internal/schema"
	"clienttabs/internal/store"
)

// Records reads and writes clients inside the caller's transaction. The schema is
// reflected afresh for every call; nothing is cached across requests.
type Records struct {
	q       store.Querier
	catalog *schema.Catalog
}

func NewRecords(q store.Querier) *Records {
	return &Records{q: q, catalog: schema.NewCatalog(q)}
}

// selectClientsSQL joins clients to every tab table. The result has one column
// per field, named by its physical name, plus the tab link columns.
func selectClientsSQL(cs *schema.ClientSchema, where string) string {
	root := naming.RootTable
	cols := []string{
		store.Ident(root, naming.RootIDColumn),
		store.Ident(root, naming.RootCreated),
	}
	var joins []string
	for _, tab := range cs.Tabs {
		cols = append(cols, store.Ident(root, tab.Name))
		for _, f := range tab.Fields {
			cols = append(cols, store.Ident(tab.Name, f.Column))
		}
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s ON %s = %s",
			store.Ident(tab.Name), store.Ident(tab.Name, naming.TabIDColumn(tab.Name)), store.Ident(root, tab.Name)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(store.Ident(root))
	for _, j := range joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(store.Ident(root, naming.RootCreated))
	b.WriteString(", ")
	b.WriteString(store.Ident(root, naming.RootIDColumn))
	return b.String()
}

// GetAllClients returns every client, optionally only those matching filter.
func (r *Records) GetAllClients(ctx context.Context, filter string) ([]*ClientDetails, error) {
	var match *Filter
	if strings.TrimSpace(filter) != "" {
		var err error
		if match, err = CompileFilter(filter); err != nil {
			return nil, err
		}
	}

	cs, err := r.catalog.GetClientSchema(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, r.q, selectClientsSQL(cs, ""))
	if err != nil {
		return nil, apperr.FromDB("list clients", err)
	}

	clients := make([]*ClientDetails, 0, len(rows))
	for _, row := range rows {
		d := Hydrate(cs, row)
		if match != nil {
			ok, err := match.Match(d)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		clients = append(clients, d)
	}
	return clients, nil
}

// GetClientDetails returns one client with every tab hydrated.
func (r *Records) GetClientDetails(ctx context.Context, id string) (*ClientDetails, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("client", id)
	}
	cs, err := r.catalog.GetClientSchema(ctx)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, cs, id)
}

func (r *Records) fetch(ctx context.Context, cs *schema.ClientSchema, id string) (*ClientDetails, error) {
	where := store.Ident(naming.RootTable, naming.RootIDColumn) + " = $1"
	row, err := store.QueryRow(ctx, r.q, selectClientsSQL(cs, where), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("client", id)
	}
	if err != nil {
		return nil, apperr.FromDB("get client "+id, err)
	}
	return Hydrate(cs, row), nil
}

// CreateClient stores a new client. Values missing from input take their
// defaults; tab rows are only created for tabs with a non-default value.
func (r *Records) CreateClient(ctx context.Context, input *ClientDetails) (*ClientDetails, error) {
	cs, err := r.catalog.GetClientSchema(ctx)
	if err != nil {
		return nil, err
	}

	d := Hydrate(cs, nil)
	d.ID = uuid.NewString()
	if err := Merge(d, input); err != nil {
		return nil, err
	}
	if err := Validate(d); err != nil {
		return nil, err
	}

	plan := Dehydrate(d)
	// Tab rows first: the clients row references them.
	if err := r.writeTabs(ctx, plan); err != nil {
		return nil, err
	}

	cols := []string{store.Ident(naming.RootIDColumn)}
	placeholders := []string{"$1"}
	args := []any{d.ID}
	for _, l := range plan.Links {
		args = append(args, l.RowID)
		cols = append(cols, store.Ident(l.Tab))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.Ident(naming.RootTable), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := store.Exec(ctx, r.q, stmt, args...); err != nil {
		return nil, apperr.FromDB("create client", err)
	}

	return r.fetch(ctx, cs, d.ID)
}

// UpdateClient overlays input onto the stored client and writes the result.
func (r *Records) UpdateClient(ctx context.Context, id string, input *ClientDetails) (*ClientDetails, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("client", id)
	}
	cs, err := r.catalog.GetClientSchema(ctx)
	if err != nil {
		return nil, err
	}
	d, err := r.fetch(ctx, cs, id)
	if err != nil {
		return nil, err
	}
	if err := Merge(d, input); err != nil {
		return nil, err
	}
	if err := Validate(d); err != nil {
		return nil, err
	}

	plan := Dehydrate(d)
	if err := r.writeTabs(ctx, plan); err != nil {
		return nil, err
	}
	if len(plan.Links) > 0 {
		var sets []string
		var args []any
		for _, l := range plan.Links {
			args = append(args, l.RowID)
			sets = append(sets, fmt.Sprintf("%s = $%d", store.Ident(l.Tab), len(args)))
		}
		args = append(args, id)
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
			store.Ident(naming.RootTable), strings.Join(sets, ", "), store.Ident(naming.RootIDColumn), len(args))
		if _, err := store.Exec(ctx, r.q, stmt, args...); err != nil {
			return nil, apperr.FromDB("link client "+id, err)
		}
	}

	return r.fetch(ctx, cs, id)
}

func (r *Records) writeTabs(ctx context.Context, plan *WritePlan) error {
	for _, w := range plan.Tabs {
		var stmt string
		var args []any
		if w.Insert {
			cols := []string{store.Ident(naming.TabIDColumn(w.Tab))}
			placeholders := []string{"$1"}
			args = append(args, w.RowID)
			for i, c := range w.Columns {
				args = append(args, w.Values[i])
				cols = append(cols, store.Ident(c))
				placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
			}
			stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
				store.Ident(w.Tab), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		} else {
			var sets []string
			for i, c := range w.Columns {
				args = append(args, w.Values[i])
				sets = append(sets, fmt.Sprintf("%s = $%d", store.Ident(c), len(args)))
			}
			args = append(args, w.RowID)
			stmt = fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
				store.Ident(w.Tab), strings.Join(sets, ", "), store.Ident(naming.TabIDColumn(w.Tab)), len(args))
		}
		if _, err := store.Exec(ctx, r.q, stmt, args...); err != nil {
			return apperr.FromDB("write tab "+w.Tab, err)
		}
	}
	return nil
}

// DeleteClient removes the client row and then its tab rows.
func (r *Records) DeleteClient(ctx context.Context, id string) error {
	d, err := r.GetClientDetails(ctx, id)
	if err != nil {
		return err
	}

	if _, err := store.Exec(ctx, r.q,
		fmt.Sprintf("DELETE FROM %s WHERE %s = $1", store.Ident(naming.RootTable), store.Ident(naming.RootIDColumn)),
		id); err != nil {
		return apperr.FromDB("delete client "+id, err)
	}
	for _, tab := range d.Tabs {
		rowID := d.TabRowID(tab.Name)
		if rowID == "" {
			continue
		}
		if _, err := store.Exec(ctx, r.q,
			fmt.Sprintf("DELETE FROM %s WHERE %s = $1", store.Ident(tab.Name), store.Ident(naming.TabIDColumn(tab.Name))),
			rowID); err != nil {
			return apperr.FromDB("delete client row in "+tab.Name, err)
		}
	}
	return nil
}
