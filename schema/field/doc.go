// Package field defines the scalar types of model fields and the conversion
// of client and database values into their canonical Go representation.
//
//	| Type       | Go value        |
//	|------------|-----------------|
//	| TypeBool   | bool            |
//	| TypeInt    | int64           |
//	| TypeFloat  | float64         |
//	| TypeString | string          |
//	| TypeEnum   | string          |
//	| TypeUUID   | string          |
//	| TypeTime   | time.Time (UTC) |
//	| TypeJSON   | string          |
//	| TypeBytes  | []byte          |
//
// Text values of time fields are parsed with TimeLayouts.
package field
