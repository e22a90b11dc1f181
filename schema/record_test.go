package schema

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowrec/silkio/errs"
)

func buildTestSchema(t *testing.T) (*InformationModel, *Schema) {
	t.Helper()
	require := require.New(t)

	model := NewInformationModel()
	_, err := model.Define(Ident{ID: 1}, "sourceIPv4Address", TypeIPv4, 0)
	require.NoError(err)
	_, err = model.Define(Ident{ID: 2}, "octetDeltaCount", TypeUint64, 0)
	require.NoError(err)
	_, err = model.Define(Ident{ID: 3}, "packetDeltaCount", TypeUint32, 0)
	require.NoError(err)

	s, err := Create(model, []FieldSpec{
		{Name: "sourceIPv4Address"},
		{Name: "octetDeltaCount"},
		{Name: "packetDeltaCount"},
	})
	require.NoError(err)

	return model, s
}

func TestCreateInsertFreeze(t *testing.T) {
	require := require.New(t)

	_, s := buildTestSchema(t)
	require.Equal(Unfrozen, s.LockState())
	require.Len(s.Fields(), 3)

	require.NoError(s.Freeze(nil, 0))
	require.Equal(Frozen, s.LockState())
	require.Equal(4+8+4, s.RecordLength())

	// Inserting after freeze is rejected.
	err := s.InsertFieldByName("sourceIPv4Address", 0)
	require.ErrorIs(err, errs.ErrFrozen)
}

func TestInsertFieldByIDMatchesByIdent(t *testing.T) {
	require := require.New(t)

	model := NewInformationModel()
	_, err := model.Define(Ident{ID: 7}, "tcpControlBits", TypeUint8, 0)
	require.NoError(err)

	byID, err := Create(model, nil)
	require.NoError(err)
	require.NoError(byID.InsertFieldByID(7, 0))

	byIdent, err := Create(model, nil)
	require.NoError(err)
	require.NoError(byIdent.InsertFieldByIdent(Ident{ID: 7}, 0))

	require.Equal(byIdent.Fields()[0].Ident, byID.Fields()[0].Ident)
}

func TestRecordGetSetRoundTrip(t *testing.T) {
	require := require.New(t)

	_, s := buildTestSchema(t)
	require.NoError(s.Freeze(nil, 0))

	rec, err := New(s)
	require.NoError(err)

	addr := netip.MustParseAddr("10.0.0.1")
	require.NoError(rec.SetIPv4(Ident{ID: 1}, addr))
	require.NoError(rec.SetUint64(Ident{ID: 2}, 1500))
	require.NoError(rec.SetUint64(Ident{ID: 3}, 12))

	gotAddr, err := rec.GetIPv4(Ident{ID: 1})
	require.NoError(err)
	require.Equal(addr, gotAddr)

	gotBytes, err := rec.GetUint64(Ident{ID: 2})
	require.NoError(err)
	require.EqualValues(1500, gotBytes)

	gotPkts, err := rec.GetUint64(Ident{ID: 3})
	require.NoError(err)
	require.EqualValues(12, gotPkts)
}

func TestRecordClearZeroesFixedBuffer(t *testing.T) {
	require := require.New(t)

	_, s := buildTestSchema(t)
	require.NoError(s.Freeze(nil, 0))

	rec, err := New(s)
	require.NoError(err)
	require.NoError(rec.SetUint64(Ident{ID: 2}, 42))

	rec.Clear()

	got, err := rec.GetUint64(Ident{ID: 2})
	require.NoError(err)
	require.Zero(got)
}

func TestMergeIntoSumsIntegerFields(t *testing.T) {
	require := require.New(t)

	// MergeInto rejects non-integer fields, so this schema leaves out
	// buildTestSchema's sourceIPv4Address.
	model, _ := buildTestSchema(t)
	s, err := Create(model, []FieldSpec{{Name: "octetDeltaCount"}, {Name: "packetDeltaCount"}})
	require.NoError(err)
	require.NoError(s.Freeze(nil, 0))

	dst, err := New(s)
	require.NoError(err)
	require.NoError(dst.SetUint64(Ident{ID: 2}, 100))
	require.NoError(dst.SetUint64(Ident{ID: 3}, 10))

	src, err := New(s)
	require.NoError(err)
	require.NoError(src.SetUint64(Ident{ID: 2}, 50))
	require.NoError(src.SetUint64(Ident{ID: 3}, 5))

	require.NoError(MergeInto(dst, src))

	bytes, err := dst.GetUint64(Ident{ID: 2})
	require.NoError(err)
	require.EqualValues(150, bytes)

	pkts, err := dst.GetUint64(Ident{ID: 3})
	require.NoError(err)
	require.EqualValues(15, pkts)
}

func TestMergeIntoRejectsMismatchedSchemas(t *testing.T) {
	require := require.New(t)

	model := NewInformationModel()
	_, err := model.Define(Ident{ID: 1}, "sourceIPv4Address", TypeIPv4, 0)
	require.NoError(err)
	_, err = model.Define(Ident{ID: 2}, "octetDeltaCount", TypeUint64, 0)
	require.NoError(err)

	_, dst := buildTestSchema(t)
	require.NoError(dst.Freeze(nil, 0))
	dstRec, err := New(dst)
	require.NoError(err)

	other, err := Create(model, []FieldSpec{{Name: "sourceIPv4Address"}})
	require.NoError(err)
	require.NoError(other.Freeze(nil, 0))
	otherRec, err := New(other)
	require.NoError(err)

	err = MergeInto(dstRec, otherRec)
	require.Error(err)
}

func TestUpdateComputedRunsInSchemaOrder(t *testing.T) {
	require := require.New(t)

	model := NewInformationModel()
	bytesField, err := model.Define(Ident{ID: 2}, "octetDeltaCount", TypeUint64, 0)
	require.NoError(err)
	pktsField, err := model.Define(Ident{ID: 3}, "packetDeltaCount", TypeUint32, 0)
	require.NoError(err)
	_, err = model.Define(Ident{ID: 4}, "averageBytesPerPacket", TypeUint64, 0)
	require.NoError(err)

	order := make([]string, 0, 3)
	trackOrder := func(name string) func(rec *Record) error {
		return func(rec *Record) error {
			order = append(order, name)

			return nil
		}
	}
	bytesField.Ops = &Ops{Compute: trackOrder("bytes")}
	pktsField.Ops = &Ops{Compute: trackOrder("pkts")}

	s, err := Create(model, []FieldSpec{
		{Name: "octetDeltaCount"},
		{Name: "packetDeltaCount"},
		{Name: "averageBytesPerPacket"},
	})
	require.NoError(err)
	require.NoError(s.Freeze(nil, 0))

	rec, err := New(s)
	require.NoError(err)
	require.NoError(rec.UpdateComputed())
	require.Equal([]string{"bytes", "pkts"}, order)
}

func TestCopyIntoFixedOnly(t *testing.T) {
	require := require.New(t)

	_, s := buildTestSchema(t)
	require.NoError(s.Freeze(nil, 0))

	src, err := New(s)
	require.NoError(err)
	require.NoError(src.SetUint64(Ident{ID: 2}, 999))

	dst, err := New(s)
	require.NoError(err)

	require.NoError(CopyInto(dst, src, CopyFixedOnly|CopyUninitializedDest))

	got, err := dst.GetUint64(Ident{ID: 2})
	require.NoError(err)
	require.EqualValues(999, got)
}
