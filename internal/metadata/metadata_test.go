package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const customerJSON = `{
  "tab_name": "Customer Status",
  "test_case_flow": {
    "inputs": [
      {"sequence": 1, "action": "POST", "entity": "customer", "url": "/customers/search", "identifier_attributes": ["id"]},
      {"sequence": "2", "action": "put", "entity": "customer", "url": "/customers", "identifier_attributes": ["id"], "input_attributes": ["status"]}
    ],
    "outputs": [
      {"sequence": 1, "action": "POST", "entity": "customer", "url": "/customers/search", "identifier_attributes": ["id"], "output_attributes": ["status"]}
    ]
  }
}`

const orderYAML = `
tab_name: Orders
test_case_flow:
  inputs:
    - sequence: 1
      action: POST
      entity: order
      url: /orders/search
      identifier_attributes: [order_no]
  outputs:
    - sequence: 1
      action: POST
      entity: order
      url: /orders/search
      identifier_attributes: [order_no]
      output_attributes: [qty, status]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_customer.json", customerJSON)
	writeFile(t, dir, "b_orders.yaml", orderYAML)
	writeFile(t, dir, "c_broken.json", `{"tab_name": `)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	core, logs := observer.New(zap.WarnLevel)
	descriptors, err := LoadDir(dir, zap.New(core))
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	customer := descriptors[0]
	assert.Equal(t, "Customer Status", customer.TabName)
	require.Len(t, customer.Flow.Inputs, 2)
	assert.Equal(t, Sequence("1"), customer.Flow.Inputs[0].Sequence)
	assert.Equal(t, Sequence("2"), customer.Flow.Inputs[1].Sequence)
	assert.Equal(t, ActionPut, customer.Flow.Inputs[1].Method())
	assert.Equal(t, []string{"status"}, customer.Flow.Inputs[1].InputAttributes)
	assert.Equal(t, []string{"status"}, customer.Flow.Outputs[0].OutputAttributes)
	assert.Equal(t, filepath.Join(dir, "a_customer.json"), customer.Source)

	orders := descriptors[1]
	assert.Equal(t, "Orders", orders.TabName)
	assert.Equal(t, "ORDER", orders.Flow.Outputs[0].NormalizedEntity())
	assert.Equal(t, []string{"qty", "status"}, orders.Flow.Outputs[0].OutputAttributes)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "skipping metadata file", logs.All()[0].Message)
}

func TestLoadDir_NotFound(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMetadataNotFound)
}

func TestStepDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		step    StepDefinition
		wantErr string
	}{
		{
			name: "complete",
			step: StepDefinition{Sequence: "1", Action: "POST", Entity: "customer", URL: "/customers/search"},
		},
		{
			name:    "missing url",
			step:    StepDefinition{Sequence: "1", Action: "POST", Entity: "customer"},
			wantErr: "url",
		},
		{
			name:    "missing everything",
			step:    StepDefinition{},
			wantErr: "sequence, action, entity, url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIncompleteStep)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPartition(t *testing.T) {
	steps := []StepDefinition{
		{Sequence: "1", Action: "POST", Entity: "customer", URL: "/customers/search"},
		{Sequence: "2", Action: "PUT", Entity: "customer"},
		{Sequence: "3", Action: "PUT", Entity: "customer", URL: "/customers"},
	}

	core, logs := observer.New(zap.WarnLevel)
	valid := Partition(steps, zap.New(core))

	require.Len(t, valid, 2)
	assert.Equal(t, Sequence("1"), valid[0].Sequence)
	assert.Equal(t, Sequence("3"), valid[1].Sequence)
	assert.Equal(t, 1, logs.FilterMessage("skipping step").Len())
}

func TestDescriptor_Validate(t *testing.T) {
	d := Descriptor{}
	assert.ErrorIs(t, d.Validate(), ErrMissingTabName)

	d.TabName = "Tab"
	assert.NoError(t, d.Validate())
}

func TestSequence_Int(t *testing.T) {
	n, ok := Sequence(" 3 ").Int()
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = Sequence("step-a").Int()
	assert.False(t, ok)
}
