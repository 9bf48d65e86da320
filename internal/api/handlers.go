package api

import (
	"bytes"
	"context"
	"strconv"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/codec"
	"github.com/ermrest-eu/ermrestd/internal/database"
	"github.com/ermrest-eu/ermrestd/internal/epath"
	"github.com/ermrest-eu/ermrestd/internal/ermname"
	"github.com/ermrest-eu/ermrestd/internal/projection"
	"github.com/ermrest-eu/ermrestd/internal/session"
	"github.com/ermrest-eu/ermrestd/internal/sqlgen"
	"github.com/ermrest-eu/ermrestd/internal/urlgrammar"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// requestContext bundles everything a verb handler needs once the model has
// been loaded and the URL has been parsed: the parsed request, the model it
// resolves against, and the caller's identity for policy and ETag.
type requestContext struct {
	model *catalog.Model
	req   *urlgrammar.Request
	id    session.Identity
}

func (s *Server) loadRequest(c *fiber.Ctx, verb string) (*requestContext, error) {
	catalogID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return nil, apierr.New(apierr.BadSyntax, "catalog id %q is not an integer", c.Params("id"))
	}

	fullPath := "/catalog/" + c.Params("id") + "/" + verb + "/" + c.Params("*")
	req, err := urlgrammar.ParseRequest(fullPath, string(c.Request().URI().QueryString()))
	if err != nil {
		return nil, err
	}
	req.CatalogID = catalogID

	model, err := s.cache.Get(c.Context(), catalogID)
	if err != nil {
		return nil, err
	}

	id := s.identity.Resolve(c)

	return &requestContext{model: model, req: req, id: id}, nil
}

// pageLimit resolves the ?limit= queryopt against the server's configured
// default/max, clamping a caller-supplied value to maxPageSize.
func (s *Server) pageLimit(opts map[string][]string) (int, error) {
	limit := s.defaultPageSize
	if v, ok := opts["limit"]; ok && len(v) > 0 {
		n, err := strconv.Atoi(v[0])
		if err != nil || n < 0 {
			return 0, apierr.New(apierr.BadSyntax, "invalid limit %q", v[0])
		}
		limit = n
	}
	if s.maxPageSize > 0 && (limit <= 0 || limit > s.maxPageSize) {
		limit = s.maxPageSize
	}
	return limit, nil
}

func outputColumns(items []projection.Item) []string {
	cols := make([]string, len(items))
	for i, it := range items {
		cols[i] = it.OutputName
	}
	return cols
}

// runRead builds sel, drains it inside a read-only transaction attempt, and
// writes the result in the content type c negotiates, honoring If-None-Match
// against the model's data-version ETag.
func (s *Server) runRead(c *fiber.Ctx, rc *requestContext, path *epath.EntityPath, items []projection.Item, groupKeys []projection.Item) error {
	if err := s.policy.EnforceRead(c.Context(), rc.id, path.TailTable()); err != nil {
		return err
	}

	ct := negotiateOutput(c)
	etag := session.Compute(session.ETagInputs{
		DataVersion:  rc.model.Version,
		VaryAccept:   true,
		AcceptHeader: string(ct),
	})
	c.Set(fiber.HeaderVary, session.VaryHeader(session.ETagInputs{VaryAccept: true}))
	c.Set(fiber.HeaderETag, etag)

	if session.EvaluateRead(c.Get(fiber.HeaderIfNoneMatch), etag) {
		return c.SendStatus(fiber.StatusNotModified)
	}

	limit, err := s.pageLimit(rc.req.QueryOpts)
	if err != nil {
		return err
	}

	sel, err := sqlgen.RenderSelect(path, items, groupKeys, limit)
	if err != nil {
		return err
	}

	result, err := s.envelope.Perform(c.Context(), rc.id, func(ctx context.Context, tx pgx.Tx) (interface{}, error) {
		return sqlgen.Drain(ctx, tx, sel)
	})
	if err != nil {
		return err
	}
	rows := result.([]sqlgen.Row)

	codecRows := make([]codec.Row, len(rows))
	for i, r := range rows {
		codecRows[i] = codec.Row(r)
	}

	c.Set(fiber.HeaderContentType, string(ct))
	var buf bytes.Buffer
	if err := codec.EncodeRows(&buf, ct, outputColumns(append(append([]projection.Item{}, groupKeys...), items...)), codecRows); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

// resolveProjection parses the projection list for verbs that require one
// (Attribute/AttributeGroup/Aggregate): a request with no projection suffix
// is a bad request for these verbs. Entity is the one verb that defaults an
// absent projection list, and it does so to its tail table's columns
// (projection.TailDefault), not to a bare `*` run through Preprocess's
// alias/context-relative expansion — see TailDefault's comment.
func resolveProjection(model *catalog.Model, path *epath.EntityPath, raw []urlgrammar.ProjItem, required bool) ([]projection.Item, error) {
	if len(raw) == 0 {
		if required {
			return nil, apierr.New(apierr.BadSyntax, "a projection list is required for this verb")
		}
		return projection.TailDefault(path), nil
	}
	return projection.Preprocess(model, path, toInputItems(raw))
}

// --- Entity ---

func (s *Server) handleEntityGet(c *fiber.Ctx) error {
	rc, err := s.loadRequest(c, "entity")
	if err != nil {
		return err
	}
	path, err := buildPath(rc.model, rc.req.Segments)
	if err != nil {
		return err
	}
	items, err := resolveProjection(rc.model, path, nil, false)
	if err != nil {
		return err
	}
	path.Freeze()
	return s.runRead(c, rc, path, items, nil)
}

func (s *Server) handleEntityWrite(c *fiber.Ctx) error {
	rc, err := s.loadRequest(c, "entity")
	if err != nil {
		return err
	}
	path, err := buildPath(rc.model, rc.req.Segments)
	if err != nil {
		return err
	}
	table := path.TailTable()
	if err := s.policy.EnforceWrite(c.Context(), rc.id, table); err != nil {
		s.audit.LogPolicyDenial(c, "write", table.QualifiedName(), rc.id.ClientID, err.Error())
		return err
	}

	allowExisting := c.Method() == fiber.MethodPut
	if allowExisting {
		etag := session.Compute(session.ETagInputs{DataVersion: rc.model.Version})
		if session.EvaluateWrite(c.Get(fiber.HeaderIfMatch), etag) {
			return apierr.New(apierr.PreconditionFailed, "If-Match precondition failed")
		}
	}

	inRows, err := codec.DecodeRows(bytes.NewReader(c.Body()), inputContentType(c))
	if err != nil {
		return err
	}
	rows := make([]sqlgen.Row, len(inRows))
	for i, r := range inRows {
		rows[i] = sqlgen.Row(r)
	}

	defaults := parseDefaults(rc.req.QueryOpts)

	write, err := sqlgen.RenderInsert(table, rows, allowExisting, defaults)
	if err != nil {
		return err
	}

	result, err := s.envelope.Perform(c.Context(), rc.id, func(ctx context.Context, tx pgx.Tx) (interface{}, error) {
		rows, err := sqlgen.DrainWrite(ctx, tx, write)
		if err != nil {
			return nil, database.ClassifyWriteError(err)
		}
		return rows, nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(rc.model.CatalogID)
	outRows := result.([]sqlgen.Row)

	action := "insert"
	if allowExisting {
		action = "upsert"
	}
	s.audit.LogEntityWrite(c, action, table.QualifiedName(), rc.id.ClientID, len(outRows))

	ct := negotiateOutput(c)
	cols := table.ColumnsInOrder()
	colNames := make([]string, len(cols))
	for i, col := range cols {
		colNames[i] = col.Name
	}
	codecRows := make([]codec.Row, len(outRows))
	for i, r := range outRows {
		codecRows[i] = codec.Row(r)
	}

	c.Set(fiber.HeaderContentType, string(ct))
	var buf bytes.Buffer
	if err := codec.EncodeRows(&buf, ct, colNames, codecRows); err != nil {
		return err
	}
	status := fiber.StatusOK
	if !allowExisting {
		status = fiber.StatusCreated
	}
	return c.Status(status).Send(buf.Bytes())
}

func (s *Server) handleEntityDelete(c *fiber.Ctx) error {
	rc, err := s.loadRequest(c, "entity")
	if err != nil {
		return err
	}
	path, err := buildPath(rc.model, rc.req.Segments)
	if err != nil {
		return err
	}
	table := path.TailTable()
	if err := s.policy.EnforceWrite(c.Context(), rc.id, table); err != nil {
		s.audit.LogPolicyDenial(c, "delete", table.QualifiedName(), rc.id.ClientID, err.Error())
		return err
	}

	etag := session.Compute(session.ETagInputs{DataVersion: rc.model.Version})
	if session.EvaluateWrite(c.Get(fiber.HeaderIfMatch), etag) {
		return apierr.New(apierr.PreconditionFailed, "If-Match precondition failed")
	}

	write, err := sqlgen.RenderDelete(path)
	if err != nil {
		return err
	}

	result, err := s.envelope.Perform(c.Context(), rc.id, func(ctx context.Context, tx pgx.Tx) (interface{}, error) {
		tag, err := tx.Exec(ctx, write.SQL, write.Args...)
		if err != nil {
			return nil, database.ClassifyWriteError(err)
		}
		return tag, nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(rc.model.CatalogID)

	rowsAffected := result.(pgconn.CommandTag).RowsAffected()
	s.audit.LogEntityWrite(c, "delete", table.QualifiedName(), rc.id.ClientID, int(rowsAffected))

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Attribute ---

func (s *Server) handleAttributeGet(c *fiber.Ctx) error {
	rc, err := s.loadRequest(c, "attribute")
	if err != nil {
		return err
	}
	path, err := buildPath(rc.model, rc.req.Segments)
	if err != nil {
		return err
	}
	items, err := resolveProjection(rc.model, path, rc.req.Projection, true)
	if err != nil {
		return err
	}
	path.Freeze()
	return s.runRead(c, rc, path, items, nil)
}

// --- AttributeGroup ---

func (s *Server) handleAttributeGroupGet(c *fiber.Ctx) error {
	rc, err := s.loadRequest(c, "attributegroup")
	if err != nil {
		return err
	}
	path, err := buildPath(rc.model, rc.req.Segments)
	if err != nil {
		return err
	}
	groupKeys, err := projection.Preprocess(rc.model, path, toInputItems(rc.req.Group))
	if err != nil {
		return err
	}
	items, err := resolveProjection(rc.model, path, rc.req.Projection, true)
	if err != nil {
		return err
	}
	path.Freeze()
	return s.runRead(c, rc, path, items, groupKeys)
}

func (s *Server) handleAttributeGroupPut(c *fiber.Ctx) error {
	// AttributeGroup write semantics (bulk column update keyed by the group)
	// are not yet implemented; the read path above is the verb's primary use.
	return apierr.New(apierr.BadSyntax, "attributegroup PUT is not supported")
}

// --- Aggregate ---

func (s *Server) handleAggregateGet(c *fiber.Ctx) error {
	rc, err := s.loadRequest(c, "aggregate")
	if err != nil {
		return err
	}
	path, err := buildPath(rc.model, rc.req.Segments)
	if err != nil {
		return err
	}
	items, err := resolveProjection(rc.model, path, rc.req.Projection, true)
	if err != nil {
		return err
	}
	path.Freeze()
	return s.runRead(c, rc, path, items, nil)
}

// --- TextFacet ---

// handleTextFacetGet answers a textfacet request as a plain Attribute read
// with the projection fixed to "*", which Preprocess expands to every column
// of the path's current context table; no grouping is applied.
func (s *Server) handleTextFacetGet(c *fiber.Ctx) error {
	rc, err := s.loadRequest(c, "textfacet")
	if err != nil {
		return err
	}
	path, err := buildPath(rc.model, rc.req.Segments)
	if err != nil {
		return err
	}
	items, err := projection.Preprocess(rc.model, path, []projection.InputItem{{Name: ermname.New("*")}})
	if err != nil {
		return err
	}
	path.Freeze()
	return s.runRead(c, rc, path, items, nil)
}

// parseDefaults implements spec.md §6.1's resolved `?defaults=` open
// question: a comma-separated column list naming columns the database
// should supply rather than the caller.
func parseDefaults(opts map[string][]string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, v := range opts["defaults"] {
		for _, col := range splitComma(v) {
			if col != "" {
				out[col] = struct{}{}
			}
		}
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
