// Package upload persists multipart file parts to the uploads directory
// under collision-free names of the form {uuid}_{sanitized filename}.
package upload
