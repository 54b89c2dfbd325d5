package pool

import (
	"context"
	"testing"
	"time"

	_ "github.com/karolsteve/libzdb/driverapi"
)

func TestGetDoubleAndGetTimestampAndGetDateTime(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE rs1 (d REAL, ts TEXT)")
	if _, err := c.Execute(ctx, "INSERT INTO rs1 (d, ts) VALUES (3.5, '2024-03-15T10:30:00Z')"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rs, err := c.ExecuteQuery(ctx, "SELECT d, ts FROM rs1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}

	d, err := rs.GetDouble(1)
	if err != nil {
		t.Fatalf("GetDouble: %v", err)
	}
	if d != 3.5 {
		t.Errorf("GetDouble = %v, want 3.5", d)
	}

	want := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC).Unix()
	ts, err := rs.GetTimestamp(2)
	if err != nil {
		t.Fatalf("GetTimestamp: %v", err)
	}
	if ts != want {
		t.Errorf("GetTimestamp = %d, want %d", ts, want)
	}

	dt, err := rs.GetDateTime(2)
	if err != nil {
		t.Fatalf("GetDateTime: %v", err)
	}
	if dt.Year != 2024 || dt.Month != 2 || dt.Day != 15 || dt.Hour != 10 || dt.Min != 30 {
		t.Errorf("GetDateTime = %+v, want 2024-03(month=2)-15 10:30", dt)
	}
}

func TestIsNullAndGetIntOnNull(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE rs2 (n INTEGER)")
	if _, err := c.Execute(ctx, "INSERT INTO rs2 (n) VALUES (NULL)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rs, err := c.ExecuteQuery(ctx, "SELECT n FROM rs2")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}

	isNull, err := rs.IsNull(1)
	if err != nil {
		t.Fatalf("IsNull: %v", err)
	}
	if !isNull {
		t.Error("expected IsNull(1) to be true for a NULL column")
	}

	n, err := rs.GetInt(1)
	if err != nil {
		t.Fatalf("GetInt on null: %v", err)
	}
	if n != 0 {
		t.Errorf("GetInt on null = %d, want 0", n)
	}
}

func TestResultSetInvalidatedAfterNextExecuteQuery(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE rs3 (n INTEGER)")
	if _, err := c.Execute(ctx, "INSERT INTO rs3 (n) VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rs1, err := c.ExecuteQuery(ctx, "SELECT n FROM rs3")
	if err != nil {
		t.Fatalf("query 1: %v", err)
	}
	if _, err := c.ExecuteQuery(ctx, "SELECT n FROM rs3"); err != nil {
		t.Fatalf("query 2: %v", err)
	}

	if _, err := rs1.Next(); err == nil {
		t.Error("expected the first ResultSet to be invalidated by the second ExecuteQuery")
	}
}
