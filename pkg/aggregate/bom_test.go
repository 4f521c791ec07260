package aggregate

import (
	"context"
	"math"
	"testing"

	"github.com/Tim-sandbox/barista/pkg/model"
)

func TestBOMFarPagesAreEmpty(t *testing.T) {
	db := newStore(t)
	pid := newProject(t, db)
	a := New(db, nil, nil, nil)
	ctx := context.Background()
	publish(t, db, pid, sampleFindings)

	pages := []int{2, 1 << 40, 184467440737095517, 368934881474191032, math.MaxInt}
	for _, p := range pages {
		q := model.BOMQuery{Page: p, PageSize: 50}

		lp, err := a.LicenseBOM(ctx, pid, q)
		if err != nil {
			t.Fatalf("LicenseBOM page %d: %v", p, err)
		}
		if lp.Count != 0 || len(lp.Data) != 0 || lp.Total != 4 || lp.Page != p {
			t.Errorf("LicenseBOM page %d = %+v", p, lp)
		}

		sp, err := a.SecurityBOM(ctx, pid, q)
		if err != nil {
			t.Fatalf("SecurityBOM page %d: %v", p, err)
		}
		if sp.Count != 0 || len(sp.Data) != 0 {
			t.Errorf("SecurityBOM page %d = %+v", p, sp)
		}

		op, err := a.LicensesOnly(ctx, pid, q)
		if err != nil {
			t.Fatalf("LicensesOnly page %d: %v", p, err)
		}
		if op.Count != 0 || len(op.Data) != 0 {
			t.Errorf("LicensesOnly page %d = %+v", p, op)
		}
	}
}

func TestPaginate(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	tests := []struct {
		page, size int
		want       []int
		pageCount  int
	}{
		{0, 2, []int{1, 2}, 3},
		{2, 2, []int{5}, 3},
		{3, 2, []int{}, 3},
		{math.MaxInt, 2, []int{}, 3},
		{math.MaxInt / 2, 3, []int{}, 2},
	}
	for _, tt := range tests {
		got := paginate(rows, model.BOMQuery{Page: tt.page, PageSize: tt.size})
		if len(got.Data) != len(tt.want) || got.PageCount != tt.pageCount || got.Total != 5 {
			t.Errorf("paginate(page=%d, size=%d) = %+v", tt.page, tt.size, got)
			continue
		}
		for i := range tt.want {
			if got.Data[i] != tt.want[i] {
				t.Errorf("paginate(page=%d, size=%d) data = %v, want %v", tt.page, tt.size, got.Data, tt.want)
				break
			}
		}
	}
}
