package domain

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool     { return &b }

func TestProduct_MigrateImages(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    []string
	}{
		{
			name:    "legacy image_url only",
			product: Product{ImageURL: "http://x/a.jpg"},
			want:    []string{"http://x/a.jpg"},
		},
		{
			name:    "images already set",
			product: Product{Images: []string{"http://x/b.jpg"}, ImageURL: "http://x/a.jpg"},
			want:    []string{"http://x/b.jpg"},
		},
		{
			name:    "no images at all",
			product: Product{},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := tt.product
			once.MigrateImages()
			assert.Equal(t, tt.want, once.Images)

			twice := once
			twice.MigrateImages()
			assert.Equal(t, once, twice, "migration must be idempotent")
		})
	}
}

func TestProduct_PrimaryImage(t *testing.T) {
	p := Product{Images: []string{"a", "b"}, ImageURL: "legacy"}
	img, ok := p.PrimaryImage()
	assert.True(t, ok)
	assert.Equal(t, "a", img)

	p = Product{ImageURL: "legacy"}
	img, ok = p.PrimaryImage()
	assert.True(t, ok)
	assert.Equal(t, "legacy", img)

	p = Product{}
	img, ok = p.PrimaryImage()
	assert.False(t, ok)
	assert.Empty(t, img)
}

func TestNewProduct(t *testing.T) {
	before := time.Now().UTC()
	req := &CreateProductRequest{
		Name:        "Phone X",
		Brand:       "Acme",
		Category:    CategoryPhone,
		Price:       49900,
		Description: "flagship",
		Images:      []string{"https://img/1.jpg"},
		Specs:       &ProductSpecs{RAM: strPtr("8GB")},
	}

	p := NewProduct(req)

	_, err := uuid.Parse(p.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Phone X", p.Name)
	assert.Equal(t, uint32(49900), p.Price)
	assert.Equal(t, []string{"https://img/1.jpg"}, p.Images)
	assert.Empty(t, p.ImageURL)
	assert.True(t, p.InStock, "in_stock defaults to true")
	assert.False(t, p.CreatedAt.Before(before))

	req.InStock = boolPtr(false)
	assert.False(t, NewProduct(req).InStock)
	assert.NotEqual(t, p.ID, NewProduct(req).ID)
}

func TestProduct_JSONOmitsAbsentFields(t *testing.T) {
	p := Product{
		Name:     "Case",
		Brand:    "Acme",
		Category: CategoryAccessory,
		Specs:    &ProductSpecs{Battery: strPtr("5000mAh")},
		InStock:  true,
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.NotContains(t, m, "_id")
	assert.NotContains(t, m, "images")
	assert.NotContains(t, m, "image_url")
	assert.Equal(t, map[string]any{"battery": "5000mAh"}, m["specs"])

	p.ID = "abc"
	p.Images = []string{"https://img/1.jpg"}
	data, err = json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"_id":"abc"`)
	assert.Contains(t, string(data), `"images":["https://img/1.jpg"]`)
}

func TestCreateProductRequest_UnmarshalJSON(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		body := `{"name":"Phone X","brand":"Acme","category":"Phone","price":49900,"description":"",
			"images":["https://img/1.jpg"],"specs":{"ram":"8GB"},"in_stock":false,"unknown":1}`
		var req CreateProductRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))

		assert.Equal(t, "Phone X", req.Name)
		assert.Equal(t, uint32(49900), req.Price)
		assert.Equal(t, "", req.Description)
		assert.Equal(t, []string{"https://img/1.jpg"}, req.Images)
		require.NotNil(t, req.Specs)
		assert.Equal(t, "8GB", *req.Specs.RAM)
		assert.Nil(t, req.Specs.Camera)
		require.NotNil(t, req.InStock)
		assert.False(t, *req.InStock)
	})

	t.Run("empty images and omitted optionals", func(t *testing.T) {
		body := `{"name":"n","brand":"b","category":"c","price":0,"description":"d","images":[]}`
		var req CreateProductRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		assert.Empty(t, req.Images)
		assert.Nil(t, req.InStock)
		assert.Nil(t, req.Specs)
	})

	failures := map[string]string{
		"missing images":   `{"name":"n","brand":"b","category":"c","price":1,"description":"d"}`,
		"missing price":    `{"name":"n","brand":"b","category":"c","description":"d","images":[]}`,
		"null name":        `{"name":null,"brand":"b","category":"c","price":1,"description":"d","images":[]}`,
		"negative price":   `{"name":"n","brand":"b","category":"c","price":-1,"description":"d","images":[]}`,
		"string price":     `{"name":"n","brand":"b","category":"c","price":"1","description":"d","images":[]}`,
		"images not array": `{"name":"n","brand":"b","category":"c","price":1,"description":"d","images":"x"}`,
		"not an object":    `[1,2]`,
	}
	for name, body := range failures {
		t.Run(name, func(t *testing.T) {
			var req CreateProductRequest
			assert.Error(t, json.Unmarshal([]byte(body), &req))
		})
	}

	t.Run("missing field error names the field", func(t *testing.T) {
		var req CreateProductRequest
		err := json.Unmarshal([]byte(`{"name":"n","brand":"b","category":"c","price":1}`), &req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingField))
		assert.Contains(t, err.Error(), "`description`")
		assert.Contains(t, err.Error(), "`images`")
	})
}

func TestParseProductQuery(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ProductFilter
		wantErr bool
	}{
		{name: "empty", raw: "", want: ProductFilter{}},
		{name: "brand only", raw: "brand=Apple", want: ProductFilter{"brand": "Apple"}},
		{
			name: "all fields",
			raw:  "brand=Apple&category=Phone&in_stock=true",
			want: ProductFilter{"brand": "Apple", "category": "Phone", "in_stock": true},
		},
		{name: "in_stock false", raw: "in_stock=false", want: ProductFilter{"in_stock": false}},
		{name: "present but empty brand", raw: "brand=", want: ProductFilter{"brand": ""}},
		{name: "unknown params ignored", raw: "page=2", want: ProductFilter{}},
		{name: "bad in_stock", raw: "in_stock=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.raw)
			require.NoError(t, err)

			q, err := ParseProductQuery(values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Filter())
		})
	}
}
