package consts

const (
	// field name
	PartitionKeyFieldName = "PartitionKey"
	RowKeyFieldName       = "RowKey"
	EntityTypeFieldName   = "et"

	EntityTypeLease = "LS"

	// lease fields
	LeaseValueFieldName      = "v"
	LeaseUpdateIPFieldName   = "ip"
	LeaseUpdateUserFieldName = "u"
	LeaseUntilFieldName      = "un" // unix nano
	LeaseCreatedAtFieldName  = "ca" // unix nano
	LeaseNoteFieldName       = "n"
	LeaseLastModifiedField   = "lm" // unix nano, stamped by the store

	WriteTesterPartitionKey = "__SYS__WRITE_ACCESS_CHECK__"
	WriteTestRowKey         = "__SYS__WRITE_ACCESS_CHECK__"

	// seconds, per storage call
	DefaultTimeout = 5
)
