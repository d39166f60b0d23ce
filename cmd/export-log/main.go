package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// CLI flags
var (
	dsn     = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	out     = flag.String("out", "", "Output CSV path (default: stdout)")
	since   = flag.String("since", "", "Only export lookups at or after this date (YYYY-MM-DD)")
	missing = flag.Bool("missing", false, "Only export lookups that found no Commons category")
	limit   = flag.Int("limit", 0, "Maximum rows to export. 0 = no limit")
)

// CSV contract
// id,dt,lat,lon,remote_addr,fqdn,response_time_ms,result

var header = []string{"id", "dt", "lat", "lon", "remote_addr", "fqdn", "response_time_ms", "result"}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	var from time.Time
	if *since != "" {
		t, err := time.Parse("2006-01-02", *since)
		if err != nil {
			fatalf("--since: %v", err)
		}
		from = t
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fatalf("create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}

	n, err := export(ctx, db, w, from, *missing, *limit)
	if err != nil {
		fatalf("export: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Exported %d lookups\n", n)
}

func buildQuery(from time.Time, onlyMissing bool, limit int) (string, []any) {
	q := `SELECT id, dt, lat, lon, remote_addr, fqdn, response_time_ms, result::text
FROM lookup_log WHERE 1=1`
	var args []any
	if !from.IsZero() {
		args = append(args, from)
		q += fmt.Sprintf(" AND dt >= $%d", len(args))
	}
	if onlyMissing {
		q += ` AND (result->>'missing')::boolean IS TRUE`
	}
	q += " ORDER BY dt"
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return q, args
}

func export(ctx context.Context, db *sql.DB, w io.Writer, from time.Time, onlyMissing bool, limit int) (int, error) {
	q, args := buildQuery(from, onlyMissing, limit)
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	n := 0
	for rows.Next() {
		var (
			id             int64
			dt             time.Time
			lat, lon       float64
			remote, fqdn   sql.NullString
			responseTimeMs sql.NullInt64
			result         string
		)
		if err := rows.Scan(&id, &dt, &lat, &lon, &remote, &fqdn, &responseTimeMs, &result); err != nil {
			return n, err
		}
		rt := ""
		if responseTimeMs.Valid {
			rt = strconv.FormatInt(responseTimeMs.Int64, 10)
		}
		record := []string{
			strconv.FormatInt(id, 10),
			dt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(lat, 'f', -1, 64),
			strconv.FormatFloat(lon, 'f', -1, 64),
			remote.String,
			fqdn.String,
			rt,
			result,
		}
		if err := cw.Write(record); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
