// Package domain models ECMWF ERA5 reanalysis data as it flows through the
// city extraction pipeline.
//
// # Data Source
//
// ERA5 single-level reanalysis files are downloaded from the Copernicus Climate
// Data Store, one file per variable per month, and stored under a yearly
// container:
//
//	{root}/{year}/{variable}_{year}_{month:02d}_era5.{ext}
//	e.g. data/2017/2m_temperature_2017_06_era5.nc
//
// # ERA5 Conventions
//
// Grid:
//
//	Regular latitude/longitude grid at 0.25 degrees.
//	latitude runs from 90 down to -90 (721 points, descending).
//	longitude runs from 0 up to 359.75 (1440 points, ascending, [0,360) convention).
//	A city at longitude -0.1 therefore sits between 359.75 and 0 (the seam).
//
// Time:
//
//	Hourly steps encoded with CF units, e.g. "hours since 1900-01-01 00:00:00.0".
//	Newer CDS exports name the dimension "valid_time" and use seconds since 1970.
//
// Values:
//
//	Usually packed as int16 with scale_factor/add_offset and a _FillValue.
//	Values are unpacked but kept in their native units (Kelvin stays Kelvin,
//	J m**-2 stays J m**-2). Unit conversion happens downstream.
//
// # Output Artifacts
//
// One netCDF file per city per month, holding every requested variable on a
// shared time axis, with the city's coordinates as global attributes:
//
//	{root}/processed/{year}/{year}-{month:02d}-{iso3}_{city}.nc
//	e.g. data/processed/2017/2017-06-fra_paris.nc
//
// File names are lowercased and spaces become underscores so that lookups
// round-trip regardless of catalog casing.
package domain
