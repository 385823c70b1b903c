package columnar

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// ImportParquet bulk-loads every Parquet file matching pattern into the
// table within a single transaction. Only flat schemas are supported; a
// "_key" column of any integer physical type, if present, is used as the
// row key. Returns the number of rows inserted.
func (s *Store) ImportParquet(ctx context.Context, pattern string) (int64, error) {
	paths, err := expandGlob(pattern)
	if err != nil {
		return 0, err
	}
	src := &parquetSource{paths: paths, buf: make([]parquet.Row, 64)}
	defer src.close()
	return s.ingest(ctx, src)
}

// parquetSource streams records across files, row groups, and read buffers.
type parquetSource struct {
	paths []string
	cur   int

	file   *os.File
	pfile  *parquet.File
	fields []string
	group  int
	rows   parquet.Rows

	buf    []parquet.Row
	bufLen int
	bufPos int
}

func (p *parquetSource) next() (record, bool, error) {
	for {
		if p.bufPos < p.bufLen {
			row := p.buf[p.bufPos]
			p.bufPos++
			return p.recordFromRow(row)
		}

		if p.rows != nil {
			n, err := p.rows.ReadRows(p.buf)
			if n > 0 {
				p.bufLen, p.bufPos = n, 0
				continue
			}
			p.rows.Close()
			p.rows = nil
			if err != nil && err != io.EOF {
				return record{}, false, fmt.Errorf("columnar: import parquet %s: %w", p.paths[p.cur-1], err)
			}
			p.group++
			continue
		}

		if p.pfile != nil {
			groups := p.pfile.RowGroups()
			if p.group < len(groups) {
				p.rows = groups[p.group].Rows()
				continue
			}
			p.file.Close()
			p.file, p.pfile = nil, nil
			continue
		}

		if p.cur >= len(p.paths) {
			return record{}, true, nil
		}
		if err := p.openFile(p.paths[p.cur]); err != nil {
			return record{}, false, err
		}
		p.cur++
	}
}

func (p *parquetSource) openFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("columnar: import parquet: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("columnar: import parquet: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return fmt.Errorf("columnar: import parquet %s: %w", path, err)
	}

	fields := pf.Schema().Fields()
	names := make([]string, len(fields))
	for i, fld := range fields {
		if len(fld.Fields()) > 0 {
			f.Close()
			return fmt.Errorf("columnar: import parquet %s: nested column %q not supported", path, fld.Name())
		}
		names[i] = fld.Name()
	}

	p.file, p.pfile, p.fields, p.group = f, pf, names, 0
	return nil
}

// recordFromRow maps leaf values back to column names. For a flat schema
// the leaf column index of each value is the field index.
func (p *parquetSource) recordFromRow(row parquet.Row) (record, bool, error) {
	rec := record{values: make(map[string]*string, len(p.fields))}
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(p.fields) {
			return record{}, false, fmt.Errorf("columnar: import parquet: value for unknown column %d", col)
		}
		name := p.fields[col]
		if name == keyColumn {
			if v.IsNull() {
				return record{}, false, fmt.Errorf("columnar: import parquet: NULL %s", keyColumn)
			}
			rec.key = uint64(v.Int64())
			rec.hasKey = true
			continue
		}
		rec.values[name] = stringifyParquet(v)
	}
	return rec, false, nil
}

func stringifyParquet(v parquet.Value) *string {
	if v.IsNull() {
		return nil
	}
	var s string
	switch v.Kind() {
	case parquet.Boolean:
		s = strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		s = strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		s = strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		s = strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		s = strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		s = string(v.ByteArray())
	default:
		s = v.String()
	}
	return &s
}

func (p *parquetSource) close() error {
	if p.rows != nil {
		p.rows.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
