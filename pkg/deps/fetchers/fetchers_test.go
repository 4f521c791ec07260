package fetchers

import (
	"testing"

	"github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

func TestFind(t *testing.T) {
	for _, pm := range []model.PackageManager{model.PackageManagerNpm, model.PackageManagerPip, model.PackageManagerMaven} {
		if f, err := Find(pm); err != nil || f == nil {
			t.Errorf("Find(%s) = %v, %v", pm, f, err)
		}
	}
	if _, err := Find("cargo"); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("Find(cargo) err = %v, want UNSUPPORTED", err)
	}
}

func TestSupported(t *testing.T) {
	got := Supported()
	if len(got) != 3 || got[0] != model.PackageManagerMaven || got[2] != model.PackageManagerPip {
		t.Errorf("Supported() = %v", got)
	}
}
