package constants

// 通用错误消息
const (
	// 参数相关错误
	ErrInvalidParams  = "Invalid parameters"
	ErrInvalidRequest = "Invalid request format"
	ErrInvalidDate    = "Dates must use the YYYY-MM-DD format"
	ErrImageType      = "Only png, jpg and jpeg pictures are accepted"

	// 发布公告的校验错误
	ErrDescriptionRequired = "Please enter a description."
	ErrPhoneInvalid        = "Phone number must be exactly 8 digits."
	ErrPasswordRequired    = "Please set a delete password."
	ErrTypeInvalid         = "Type must be lost or found."
	ErrCategoryInvalid     = "Please choose a category from the list."
	ErrCityInvalid         = "Please choose a city from the list."

	// 公告相关错误
	ErrAnnouncementNotFound = "Announcement not found"
	ErrIncorrectPassword    = "Incorrect delete password."

	// 系统错误
	ErrInternalServer = "Internal server error"
	ErrStorage        = "Could not read or write the announcement board, please try again"
)

// 成功消息
const (
	SuccessCreate     = "Announcement posted successfully!"
	SuccessResolved   = "Post marked as resolved."
	SuccessUnresolved = "Post marked as unresolved."
	SuccessDelete     = "Post deleted successfully."
	SuccessGet        = "success"
)
