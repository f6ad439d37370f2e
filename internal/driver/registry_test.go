package driver

import "testing"

type stubDialect struct{ Dialect }

type stubDriver struct{ name string }

func (d *stubDriver) Name() string              { return d.name }
func (d *stubDriver) Aliases() []string         { return []string{d.name + "-alias"} }
func (d *stubDriver) Dialect() Dialect          { return &stubDialect{} }
func (d *stubDriver) Open(string, int) (Store, error) { return nil, nil }

func TestRegisterAndGet(t *testing.T) {
	Register(&stubDriver{name: "stubdb"})

	for _, name := range []string{"stubdb", "stubdb-alias", "STUBDB"} {
		t.Run(name, func(t *testing.T) {
			d, err := Get(name)
			if err != nil {
				t.Fatalf("Get(%q): %v", name, err)
			}
			if d.Name() != "stubdb" {
				t.Errorf("Get(%q).Name() = %q", name, d.Name())
			}
		})
	}

	if _, err := Get("oracle"); err == nil {
		t.Error("unknown driver name accepted")
	}
	if GetDialect("oracle") != nil {
		t.Error("GetDialect for unknown name should be nil")
	}
	if GetDialect("stubdb-alias") == nil {
		t.Error("GetDialect by alias returned nil")
	}
}
