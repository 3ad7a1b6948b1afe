package governanceview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/taple-mesh/node/pkg/digest"
)

// versionSchemaJSON and contractsSchemaJSON pin the wire shape this node
// accepts from the governance subsystem. A response that does not conform
// is rejected before it ever reaches Go types, so a malformed or
// compromised governance API cannot smuggle unexpected fields into the
// compiler or notary hot paths.
const versionSchemaJSON = `{
	"type": "object",
	"required": ["version"],
	"properties": {
		"version": {"type": "integer", "minimum": 0}
	}
}`

const contractsSchemaJSON = `{
	"type": "object",
	"required": ["contracts"],
	"properties": {
		"contracts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["raw", "schema_id"],
				"properties": {
					"raw": {"type": "string"},
					"schema_id": {"type": "string"}
				}
			}
		}
	}
}`

// HTTPView is a View backed by an HTTP governance API. Every response body
// is validated against a compiled JSON Schema before being unmarshalled.
type HTTPView struct {
	baseURL         string
	client          *http.Client
	versionSchema   *jsonschema.Schema
	contractsSchema *jsonschema.Schema
}

// NewHTTPView builds an HTTPView against baseURL, compiling its wire
// schemas once at construction time.
func NewHTTPView(baseURL string, client *http.Client) (*HTTPView, error) {
	if client == nil {
		client = http.DefaultClient
	}

	versionSchema, err := compileSchema("version.json", versionSchemaJSON)
	if err != nil {
		return nil, err
	}
	contractsSchema, err := compileSchema("contracts.json", contractsSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &HTTPView{
		baseURL:         baseURL,
		client:          client,
		versionSchema:   versionSchema,
		contractsSchema: contractsSchema,
	}, nil
}

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader([]byte(source))); err != nil {
		return nil, fmt.Errorf("governanceview: compiling schema %s: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("governanceview: compiling schema %s: %w", name, err)
	}
	return schema, nil
}

// GovernanceVersion implements View.
func (v *HTTPView) GovernanceVersion(ctx context.Context, govID digest.Digest) (uint64, error) {
	url := fmt.Sprintf("%s/governance/%s/version", v.baseURL, govID.Hex())
	raw, err := v.get(ctx, url, v.versionSchema)
	if err != nil {
		return 0, err
	}

	var body struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, WrapUnexpected(err)
	}
	return body.Version, nil
}

// Contracts implements View.
func (v *HTTPView) Contracts(ctx context.Context, govID digest.Digest, version uint64) ([]ContractEntry, error) {
	url := fmt.Sprintf("%s/governance/%s/contracts?version=%s", v.baseURL, govID.Hex(), strconv.FormatUint(version, 10))
	raw, err := v.get(ctx, url, v.contractsSchema)
	if err != nil {
		return nil, err
	}

	var body struct {
		Contracts []struct {
			Raw      string `json:"raw"`
			SchemaID string `json:"schema_id"`
		} `json:"contracts"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, WrapUnexpected(err)
	}

	out := make([]ContractEntry, 0, len(body.Contracts))
	for _, c := range body.Contracts {
		out = append(out, ContractEntry{
			Contract: ContractInfo{Raw: c.Raw},
			SchemaID: c.SchemaID,
		})
	}
	return out, nil
}

func (v *HTTPView) get(ctx context.Context, url string, schema *jsonschema.Schema) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, WrapUnexpected(err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, ErrChannelClosed
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, WrapUnexpected(err)
	}
	raw := buf.Bytes()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to schema validation below
	case http.StatusNotFound:
		return nil, ErrGovernanceNotFound
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapUnexpected(err)
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, WrapUnexpected(err)
	}

	return raw, nil
}
