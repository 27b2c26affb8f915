package conversations

type CreateRequest struct {
	Title string `json:"title" binding:"max=255"`
}

type RenameRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

type MessageRequest struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

type FileRequest struct {
	FilePath    string `json:"file_path" binding:"required,max=512,safepath"`
	FileContent string `json:"file_content"`
}

type FilesRequest struct {
	Files []FileRequest `json:"files" binding:"required,min=1,max=200,dive"`
}
